package bot

import (
	"github.com/bwmarrin/discordgo"
)

// Slash command names.
const (
	cmdConfig        = "config"
	cmdCard          = "card"
	cmdSearch        = "search"
	cmdCount         = "count"
	cmdManage        = "manage"
	cmdNotifications = "notifications"
)

var adminOnly = int64(discordgo.PermissionAdministrator)

// Commands returns the slash command definitions.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     cmdConfig,
			Description:              "(Admin) Link this channel to a Notion database.",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "url",
					Description: "URL of the Notion database",
					Required:    true,
				},
			},
		},
		{
			Name:        cmdCard,
			Description: "Create a new card in this channel's Notion database.",
		},
		{
			Name:        cmdSearch,
			Description: "Search cards in this channel's Notion database.",
		},
		{
			Name:        cmdCount,
			Description: "Show how many cards this channel's database holds.",
		},
		{
			Name:                     cmdManage,
			Description:              "(Admin) Manage this channel's card settings.",
			DefaultMemberPermissions: &adminOnly,
		},
		{
			Name:                     cmdNotifications,
			Description:              "(Admin) Manage notification rules for this channel.",
			DefaultMemberPermissions: &adminOnly,
		},
	}
}

// stringOption returns the value of a string option of a command.
func stringOption(i *discordgo.Interaction, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}
