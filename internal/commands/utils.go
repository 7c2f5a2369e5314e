package commands

import (
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

var errUsage = errors.New("usage")

// ParseExpense splits "<keyword><amount> <description>". ok is false when
// text does not start with keyword at all.
func ParseExpense(keyword, text string) (amount, description string, ok bool, err error) {
	text = strings.TrimSpace(text)
	if keyword == "" || !strings.HasPrefix(text, keyword) {
		return "", "", false, nil
	}
	fields := strings.SplitN(strings.TrimSpace(strings.TrimPrefix(text, keyword)), " ", 2)
	if len(fields) < 2 || fields[0] == "" || strings.TrimSpace(fields[1]) == "" {
		return "", "", true, errUsage
	}
	return fields[0], strings.TrimSpace(fields[1]), true, nil
}

// ParseNames splits a roster given as "A,B,C". Japanese commas are accepted.
// Empty entries are kept so the ledger can reject them.
func ParseNames(text string) []string {
	text = strings.ReplaceAll(text, "、", ",")
	return lo.Map(strings.Split(text, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
}

// DisplayName is the roster name used for a Discord user.
func DisplayName(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	return u.Username
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// isAdmin gates roster and payment address changes.
func isAdmin(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	return i.Member.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageServer) != 0
}

func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			return o.StringValue()
		}
	}
	return ""
}
