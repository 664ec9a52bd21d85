package main

// this file renders the user-facing messages and embeds

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"github.com/arift/DJ-Pasha/meta"
	"github.com/arift/DJ-Pasha/player"
)

const (
	embedColor    = 0x33D7FF
	queuePageSize = 10
)

// channelNotifier delivers player notifications to the text channel the
// session was started from.
type channelNotifier struct {
	session   *discordgo.Session
	channelID string
	log       *log.Logger
}

func newChannelNotifier(session *discordgo.Session, channelID string) *channelNotifier {
	return &channelNotifier{
		session:   session,
		channelID: channelID,
		log:       log.WithPrefix("notifier").With("channel", channelID),
	}
}

func (n *channelNotifier) Send(text string) {
	if _, err := n.session.ChannelMessageSend(n.channelID, text); err != nil {
		n.log.Error("sending message", "err", err)
	}
}

func (n *channelNotifier) SendNowPlaying(item player.QueueItem, info meta.SavedInfo, queueSize int) {
	embed := nowPlayingEmbed(item, info, queueSize)
	if _, err := n.session.ChannelMessageSendEmbed(n.channelID, embed); err != nil {
		n.log.Error("sending now-playing embed", "err", err)
	}
}

func nowPlayingEmbed(item player.QueueItem, info meta.SavedInfo, queueSize int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Now playing",
		Description: fmt.Sprintf("[%s](%s)", info.Title, info.VideoURL),
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Channel", Value: info.OwnerChannelName, Inline: true},
			{Name: "Length", Value: toHoursAndMinutes(info.LengthSeconds), Inline: true},
			{Name: "Queued by", Value: formatUsername(item), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d song(s) in the queue", queueSize),
		},
	}
}

// queueEmbed renders one page of the queue. Positions shown to users are
// 1-based and global, not page-relative.
func queueEmbed(page []player.QueueItem, infos []meta.SavedInfo, start, total int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Next up",
		Color: embedColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d song(s) in the queue", total),
		},
	}
	if total == 0 {
		embed.Description = "The queue is empty. Feed me with /play."
		return embed
	}
	for idx, item := range page {
		info := infos[idx]
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%d) %s", start+idx+1, info.Title),
			Value: fmt.Sprintf("%s, queued by %s", toHoursAndMinutes(info.LengthSeconds), formatUsername(item)),
		})
	}
	return embed
}

// queuePageButtons builds prev/next buttons carrying the neighboring
// page's start index in their custom ids. Queues that fit on one page
// get no buttons at all.
func queuePageButtons(start, total int) []discordgo.MessageComponent {
	if total <= queuePageSize {
		return nil
	}
	var buttons []discordgo.MessageComponent
	if start > 0 {
		prev := start - queuePageSize
		if prev < 0 {
			prev = 0
		}
		buttons = append(buttons, discordgo.Button{
			Label:    "Previous",
			Style:    discordgo.SecondaryButton,
			CustomID: fmt.Sprintf("%s%d", queuePagePrefix, prev),
		})
	}
	if start+queuePageSize < total {
		buttons = append(buttons, discordgo.Button{
			Label:    "Next",
			Style:    discordgo.SecondaryButton,
			CustomID: fmt.Sprintf("%s%d", queuePagePrefix, start+queuePageSize),
		})
	}
	if len(buttons) == 0 {
		return nil
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

// formatUsername prefers the server nickname, keeping the account name
// for disambiguation.
func formatUsername(item player.QueueItem) string {
	if item.ByNickname != "" && item.ByNickname != item.By {
		return fmt.Sprintf("%s (%s)", item.ByNickname, item.By)
	}
	return item.By
}

// toHoursAndMinutes renders a duration the way video sites do: m:ss, or
// h:mm:ss past the hour mark.
func toHoursAndMinutes(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
