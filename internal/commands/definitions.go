package commands

import "github.com/bwmarrin/discordgo"

const CommandName = "warikan"

// Component custom IDs.
const (
	PickPrefix = "wk_pick:"
	DoneID     = "wk_done"
	CancelID   = "wk_cancel"
	MenuPrefix = "wk_menu:"
)

func GetCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         CommandName,
			Description:  "割り勘の記録と精算",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "members",
					Description: "メンバー一覧を表示、または登録します (登録は管理者のみ、残高はリセットされます)",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "names",
							Description: "カンマ区切りの名前 (例: A,B,C)。省略すると一覧を表示します",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "addmember",
					Description: "メンバーを追加します (管理者のみ)",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "追加する名前",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "upi",
					Description: "メンバーの UPI ID を設定します (管理者のみ)",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "メンバー名",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "address",
							Description: "UPI ID (例: alice@upi)",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "expense",
					Description: "支出を記録します",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "amount",
							Description: "金額 (例: 120.50)",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "description",
							Description: "内容",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "summary",
					Description: "誰が誰にいくら払うかを表示します",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "me",
					Description: "自分の収支を表示します",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "メンバー名 (省略時は自分のユーザー名)",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "history",
					Description: "支出履歴を表示します",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "notify",
					Description: "未精算のメンバーに DM を送ります",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "menu",
					Description: "メニューを表示します",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "help",
					Description: "使い方を表示します",
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
