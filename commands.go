package main

// this file implements the slash command handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/arift/DJ-Pasha/player"
	"github.com/arift/DJ-Pasha/voice"
	"github.com/arift/DJ-Pasha/youtube"
)

const (
	queuePagePrefix = "--queuePage="
	statPrefix      = "stat."
)

func (b *Bot) respond(i *discordgo.InteractionCreate, text string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: text},
	})
	if err != nil {
		b.log.Error("responding to interaction", "err", err)
	}
}

func (b *Bot) deferResponse(i *discordgo.InteractionCreate) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.log.Error("deferring interaction", "err", err)
	}
}

func (b *Bot) editResponse(i *discordgo.InteractionCreate, text string) {
	_, err := b.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &text})
	if err != nil {
		b.log.Error("editing interaction response", "err", err)
	}
}

func commandOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		byName[opt.Name] = opt
	}
	return byName
}

// activePlayer resolves the player the invoker may control: there must be
// a live session and the invoker must share its voice channel.
func (b *Bot) activePlayer(i *discordgo.InteractionCreate) (*player.MusicPlayer, string) {
	p, ok := b.registry.Any()
	if !ok {
		return nil, "Nothing is playing right now. Start something with /play."
	}
	channelID, inVoice := b.voiceChannelOf(i.Member.User.ID)
	if !inVoice || channelID != p.ChannelID() {
		return nil, "You need to be in the voice channel with me to do that."
	}
	return p, ""
}

func (b *Bot) handlePlay(i *discordgo.InteractionCreate) {
	rawURL := commandOptions(i)["url"].StringValue()

	channelID, inVoice := b.voiceChannelOf(i.Member.User.ID)
	if !inVoice {
		b.respond(i, "You need to be in a voice channel first.")
		return
	}
	if p, ok := b.registry.Any(); ok && p.ChannelID() != channelID {
		b.respond(i, "I'm already playing in another channel. Come join us!")
		return
	}

	b.deferResponse(i)
	ctx := context.Background()

	var items []player.QueueItem
	var reply string
	by := i.Member.User.Username
	nick := i.Member.Nick

	if playlistID, err := youtube.ExtractPlaylistID(rawURL); err == nil {
		playlist, err := b.engine.GetPlaylistInfo(ctx, playlistID)
		if err != nil {
			b.log.Warn("playlist lookup failed", "playlistId", playlistID, "err", err)
			b.editResponse(i, "I couldn't read that playlist. Is it public?")
			return
		}
		for _, entry := range playlist.Items {
			items = append(items, player.QueueItem{ID: entry.ID, URL: entry.URL, By: by, ByNickname: nick})
		}
		reply = fmt.Sprintf("Queued **%d** songs from **%s**.", len(items), playlist.Title)
	} else {
		videoID, err := youtube.ExtractVideoID(rawURL)
		if err != nil {
			b.editResponse(i, "That doesn't look like a YouTube video or playlist.")
			return
		}
		info, err := b.engine.GetInfo(ctx, videoID)
		if err != nil {
			b.log.Warn("video lookup failed", "videoId", videoID, "err", err)
			b.editResponse(i, "I couldn't find that video.")
			return
		}
		items = append(items, player.QueueItem{ID: videoID, URL: youtube.WatchURL(videoID), By: by, ByNickname: nick})
		reply = fmt.Sprintf("Queued **%s**.", info.Title)
	}
	if len(items) == 0 {
		b.editResponse(i, "Nothing to queue there.")
		return
	}

	p, ok := b.registry.Get(channelID)
	if !ok {
		session, err := voice.Join(b.session, b.guildID, channelID)
		if err != nil {
			b.log.Error("joining voice channel", "channel", channelID, "err", err)
			b.editResponse(i, "I couldn't join your voice channel.")
			return
		}
		p = player.NewMusicPlayer(player.Config{
			ChannelID: channelID,
			Source:    b.engine,
			Session:   session,
			Notifier:  newChannelNotifier(b.session, i.ChannelID),
			Registry:  b.registry,
		})
		b.registry.Add(channelID, p)
	}
	p.AddSongs(items...)
	b.editResponse(i, reply)
}

func (b *Bot) handleQueue(i *discordgo.InteractionCreate) {
	p, denial := b.activePlayer(i)
	if p == nil {
		b.respond(i, denial)
		return
	}
	embed, components, err := b.queuePage(p, 0)
	if err != nil {
		b.respond(i, "I couldn't load the queue right now.")
		return
	}
	err = b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
	if err != nil {
		b.log.Error("responding with queue", "err", err)
	}
}

// handleQueuePage turns a page button press into an in-place update of
// the queue message. The start index rides in the button's custom id.
func (b *Bot) handleQueuePage(i *discordgo.InteractionCreate, customID string) {
	start, err := strconv.Atoi(strings.TrimPrefix(customID, queuePagePrefix))
	if err != nil || start < 0 {
		start = 0
	}
	p, ok := b.registry.Any()
	if !ok {
		b.respond(i, "That queue is long gone.")
		return
	}
	embed, components, err := b.queuePage(p, start)
	if err != nil {
		b.respond(i, "I couldn't load the queue right now.")
		return
	}
	err = b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
	if err != nil {
		b.log.Error("updating queue message", "err", err)
	}
}

func (b *Bot) queuePage(p *player.MusicPlayer, start int) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
	items := p.Queue().Items()
	if start >= len(items) {
		start = 0
	}
	end := start + queuePageSize
	if end > len(items) {
		end = len(items)
	}
	page := items[start:end]

	ids := make([]string, len(page))
	for idx, item := range page {
		ids[idx] = item.ID
	}
	infos, err := b.engine.GetInfos(context.Background(), ids)
	if err != nil {
		return nil, nil, err
	}
	return queueEmbed(page, infos, start, len(items)), queuePageButtons(start, len(items)), nil
}

func (b *Bot) handlePlaying(i *discordgo.InteractionCreate) {
	p, denial := b.activePlayer(i)
	if p == nil {
		b.respond(i, denial)
		return
	}
	item, ok := p.NowPlaying()
	if !ok {
		b.respond(i, "Nothing is playing right now.")
		return
	}
	info, err := b.engine.GetInfo(context.Background(), item.ID)
	if err != nil {
		b.respond(i, fmt.Sprintf("Playing **%s**.", item.ID))
		return
	}
	err = b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{nowPlayingEmbed(item, info, p.Queue().Size())},
		},
	})
	if err != nil {
		b.log.Error("responding with now playing", "err", err)
	}
}

func (b *Bot) handleSkip(i *discordgo.InteractionCreate) {
	p, denial := b.activePlayer(i)
	if p == nil {
		b.respond(i, denial)
		return
	}
	p.Skip()
	b.respond(i, "Skipped.")
}

func (b *Bot) handlePause(i *discordgo.InteractionCreate) {
	p, denial := b.activePlayer(i)
	if p == nil {
		b.respond(i, denial)
		return
	}
	if p.TogglePause() {
		b.respond(i, "Paused. Use /pause again to resume.")
	} else {
		b.respond(i, "Back to the music.")
	}
}

func (b *Bot) handleMove(i *discordgo.InteractionCreate) {
	p, denial := b.activePlayer(i)
	if p == nil {
		b.respond(i, denial)
		return
	}
	opts := commandOptions(i)
	from := int(opts["from"].IntValue())
	to := 1
	if opt, ok := opts["to"]; ok {
		to = int(opt.IntValue())
	}
	if err := p.Move(from, to); err != nil {
		b.respond(i, err.Error())
		return
	}
	b.respond(i, fmt.Sprintf("Moved song %d to position %d.", from, to))
}

func (b *Bot) handleRemove(i *discordgo.InteractionCreate) {
	p, denial := b.activePlayer(i)
	if p == nil {
		b.respond(i, denial)
		return
	}
	position := int(commandOptions(i)["position"].IntValue())
	if err := p.RemoveAt(position); err != nil {
		b.respond(i, err.Error())
		return
	}
	b.respond(i, fmt.Sprintf("Removed song %d from the queue.", position))
}

func (b *Bot) handleClear(i *discordgo.InteractionCreate) {
	p, denial := b.activePlayer(i)
	if p == nil {
		b.respond(i, denial)
		return
	}
	opts := commandOptions(i)
	var from, to *int
	if opt, ok := opts["from"]; ok {
		v := int(opt.IntValue())
		from = &v
	}
	if opt, ok := opts["to"]; ok {
		v := int(opt.IntValue())
		to = &v
	}
	p.ClearRange(from, to)
	b.respond(i, "Cleared.")
}

func (b *Bot) handleShuffle(i *discordgo.InteractionCreate) {
	p, denial := b.activePlayer(i)
	if p == nil {
		b.respond(i, denial)
		return
	}
	p.Shuffle()
	b.respond(i, "Shuffled the queue.")
}

func (b *Bot) handleRepeat(i *discordgo.InteractionCreate) {
	p, denial := b.activePlayer(i)
	if p == nil {
		b.respond(i, denial)
		return
	}
	on := !p.Repeat()
	p.SetRepeat(on)
	if on {
		b.respond(i, "Repeat is on. The current song will loop.")
	} else {
		b.respond(i, "Repeat is off.")
	}
}

// the stats reply opens on the week window; the buttons switch from there
const defaultStatPeriod = "week"

var statPeriods = []struct {
	ID    string
	Label string
}{
	{"24hr", "24 hours"},
	{"week", "Week"},
	{"month", "Month"},
	{"year", "Year"},
	{"allTime", "All time"},
}

// statsPeriodStart maps a period button id to the start of its window.
// Unknown ids (and allTime) mean no lower bound.
func statsPeriodStart(period string, now time.Time) *time.Time {
	var start time.Time
	switch period {
	case "24hr":
		start = now.Add(-24 * time.Hour)
	case "week":
		start = now.AddDate(0, 0, -7)
	case "month":
		start = now.AddDate(0, -1, 0)
	case "year":
		start = now.AddDate(-1, 0, 0)
	default:
		return nil
	}
	return &start
}

func statPeriodButtons() []discordgo.MessageComponent {
	buttons := make([]discordgo.MessageComponent, 0, len(statPeriods))
	for _, period := range statPeriods {
		buttons = append(buttons, discordgo.Button{
			Label:    period.Label,
			Style:    discordgo.SecondaryButton,
			CustomID: statPrefix + period.ID,
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func (b *Bot) handleStats(i *discordgo.InteractionCreate) {
	start := statsPeriodStart(defaultStatPeriod, time.Now())
	text, err := b.engine.PlayStatsText(context.Background(), start, nil)
	if err != nil {
		b.log.Error("loading stats", "err", err)
		b.respond(i, "I couldn't load the stats right now.")
		return
	}
	err = b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    text,
			Components: statPeriodButtons(),
		},
	})
	if err != nil {
		b.log.Error("responding with stats", "err", err)
	}
}

func (b *Bot) handleStatButton(i *discordgo.InteractionCreate, customID string) {
	period := strings.TrimPrefix(customID, statPrefix)
	start := statsPeriodStart(period, time.Now())
	text, err := b.engine.PlayStatsText(context.Background(), start, nil)
	if err != nil {
		b.log.Error("loading stats", "err", err)
		b.respond(i, "I couldn't load the stats right now.")
		return
	}
	err = b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    text,
			Components: statPeriodButtons(),
		},
	})
	if err != nil {
		b.log.Error("updating stats message", "err", err)
	}
}

func (b *Bot) handleHelp(i *discordgo.InteractionCreate) {
	var lines []string
	for _, def := range commandDefinitions {
		lines = append(lines, fmt.Sprintf("**/%s**: %s", def.Name, def.Description))
	}
	b.respond(i, "Here's what I can do:\n"+strings.Join(lines, "\n"))
}

func (b *Bot) handleHello(i *discordgo.InteractionCreate) {
	b.respond(i, fmt.Sprintf("Hey <@%s>! Throw me a /play and let's get this party going.", i.Member.User.ID))
}
