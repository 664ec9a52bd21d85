package main

// this file owns the discord session: gateway events, slash command
// registration and dispatch

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"github.com/arift/DJ-Pasha/meta"
	"github.com/arift/DJ-Pasha/player"
)

type BotConfig struct {
	AppID    string
	GuildID  string
	Token    string
	Engine   *meta.Engine
	Registry player.Registry
}

type Bot struct {
	session  *discordgo.Session
	appID    string
	guildID  string
	engine   *meta.Engine
	registry player.Registry
	log      *log.Logger
}

func NewBot(cfg BotConfig) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		session:  session,
		appID:    cfg.AppID,
		guildID:  cfg.GuildID,
		engine:   cfg.Engine,
		registry: cfg.Registry,
		log:      log.WithPrefix("discord"),
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)
	session.AddHandler(b.onVoiceStateUpdate)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("opening discord gateway: %w", err)
	}
	if err := b.registerCommands(); err != nil {
		session.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("logged in", "user", r.User.Username)
}

var commandDefinitions = []*discordgo.ApplicationCommand{
	{
		Name:        "play",
		Description: "Queue a YouTube video or playlist",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "url",
				Description: "YouTube URL, video id or playlist",
				Required:    true,
			},
		},
	},
	{Name: "queue", Description: "Show what is coming up next"},
	{Name: "playing", Description: "Show the current song"},
	{Name: "skip", Description: "Skip the current song"},
	{Name: "pause", Description: "Pause or resume playback"},
	{
		Name:        "move",
		Description: "Move a song to another spot in the queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "from",
				Description: "Position of the song to move",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "to",
				Description: "Where to move it (default: front)",
			},
		},
	},
	{
		Name:        "remove",
		Description: "Remove a song from the queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "position",
				Description: "Position of the song to remove",
				Required:    true,
			},
		},
	},
	{
		Name:        "clear",
		Description: "Clear the queue or a range of it",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "from",
				Description: "First position to clear",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "to",
				Description: "Last position to clear",
			},
		},
	},
	{Name: "shuffle", Description: "Shuffle the queue"},
	{Name: "repeat", Description: "Toggle repeating the current song"},
	{Name: "stats", Description: "Who bogarts the queue the most?"},
	{Name: "help", Description: "List everything DJ Pasha can do"},
	{Name: "hello", Description: "Say hi"},
}

func (b *Bot) registerCommands() error {
	_, err := b.session.ApplicationCommandBulkOverwrite(b.appID, b.guildID, commandDefinitions)
	if err != nil {
		return fmt.Errorf("registering slash commands: %w", err)
	}
	b.log.Info("slash commands registered", "count", len(commandDefinitions))
	return nil
}

var commandHandlers = map[string]func(*Bot, *discordgo.InteractionCreate){
	"play":    (*Bot).handlePlay,
	"queue":   (*Bot).handleQueue,
	"playing": (*Bot).handlePlaying,
	"skip":    (*Bot).handleSkip,
	"pause":   (*Bot).handlePause,
	"move":    (*Bot).handleMove,
	"remove":  (*Bot).handleRemove,
	"clear":   (*Bot).handleClear,
	"shuffle": (*Bot).handleShuffle,
	"repeat":  (*Bot).handleRepeat,
	"stats":   (*Bot).handleStats,
	"help":    (*Bot).handleHelp,
	"hello":   (*Bot).handleHello,
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		handler, ok := commandHandlers[name]
		if !ok {
			b.log.Warn("unknown command", "name", name)
			return
		}
		b.log.Debug("dispatching command", "name", name)
		handler(b, i)

	case discordgo.InteractionMessageComponent:
		customID := i.MessageComponentData().CustomID
		switch {
		case strings.HasPrefix(customID, queuePagePrefix):
			b.handleQueuePage(i, customID)
		case strings.HasPrefix(customID, statPrefix):
			b.handleStatButton(i, customID)
		default:
			b.log.Warn("unknown component", "customId", customID)
		}
	}
}

// onVoiceStateUpdate keeps players informed about who is listening. It
// also catches the bot itself being kicked out of a channel.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.UserID == s.State.User.ID {
		if v.ChannelID == "" && v.BeforeUpdate != nil {
			if p, ok := b.registry.Get(v.BeforeUpdate.ChannelID); ok {
				b.log.Info("kicked from voice channel, terminating player")
				p.Terminate()
			}
		}
		return
	}

	channels := []string{v.ChannelID}
	if v.BeforeUpdate != nil && v.BeforeUpdate.ChannelID != v.ChannelID {
		channels = append(channels, v.BeforeUpdate.ChannelID)
	}
	for _, channelID := range channels {
		if channelID == "" {
			continue
		}
		if p, ok := b.registry.Get(channelID); ok {
			p.HandlePresence(b.membersInChannel(channelID))
		}
	}
}

// membersInChannel counts everyone in a voice channel, the bot included.
func (b *Bot) membersInChannel(channelID string) int {
	guild, err := b.session.State.Guild(b.guildID)
	if err != nil {
		b.log.Warn("guild not in state cache", "err", err)
		return 0
	}
	count := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			count++
		}
	}
	return count
}

// voiceChannelOf returns the voice channel the user currently sits in.
func (b *Bot) voiceChannelOf(userID string) (string, bool) {
	guild, err := b.session.State.Guild(b.guildID)
	if err != nil {
		return "", false
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, true
		}
	}
	return "", false
}
