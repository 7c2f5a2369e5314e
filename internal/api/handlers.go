package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/susu3304/warikanbot/internal/commands"
	"github.com/susu3304/warikanbot/internal/ledger"
)

type memberJSON struct {
	Name           string `json:"name"`
	Balance        string `json:"balance"`
	BalanceCents   int64  `json:"balance_cents"`
	PaymentAddress string `json:"payment_address,omitempty"`
}

type draftJSON struct {
	Payer       string     `json:"payer"`
	Amount      string     `json:"amount"`
	Description string     `json:"description"`
	Selected    []string   `json:"selected"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type sessionJSON struct {
	SessionID string       `json:"session_id"`
	Version   int64        `json:"version"`
	Currency  string       `json:"currency"`
	Members   []memberJSON `json:"members"`
	Draft     *draftJSON   `json:"draft,omitempty"`
}

type transferJSON struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	PayLink     string `json:"pay_link,omitempty"`
}

type expenseJSON struct {
	ID            string    `json:"id"`
	Seq           int       `json:"seq"`
	CreatedAt     time.Time `json:"created_at"`
	Description   string    `json:"description"`
	Amount        string    `json:"amount"`
	Payer         string    `json:"payer"`
	Beneficiaries []string  `json:"beneficiaries"`
	Share         string    `json:"share"`
}

type personalJSON struct {
	Name  string `json:"name"`
	Paid  string `json:"paid"`
	Share string `json:"share"`
	Net   string `json:"net"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := a.svc.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"sessions":       len(a.svc.SessionIDs()),
		"exported":       stats.Exported,
		"export_failed":  stats.ExportFailed,
		"persisted":      stats.Persisted,
		"persist_failed": stats.PersistFailed,
	})
}

func (a *API) handleUserGuilds(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	guilds, err := a.listGuilds(r.Context(), claims.AccessToken)
	if err != nil {
		http.Error(w, "failed to get guilds", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, guilds)
}

// sessionAccessMiddleware requires the caller to be in the guild and the
// session channel to belong to that guild.
func (a *API) sessionAccessMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		guildID, sessionID := vars["guild_id"], vars["session_id"]

		if !a.userHasGuildAccess(r, guildID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		owner, err := a.channelGuild(sessionID)
		if err != nil || owner != guildID {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) userHasGuildAccess(r *http.Request, guildID string) bool {
	claims := claimsFrom(r.Context())
	guilds, err := a.listGuilds(r.Context(), claims.AccessToken)
	if err != nil {
		a.log.WarnContext(r.Context(), "failed to list guilds", "user_id", claims.UserID, "error", err)
		return false
	}
	return lo.ContainsBy(guilds, func(g DiscordGuild) bool { return g.ID == guildID })
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	out := sessionJSON{
		SessionID: sessionID,
		Version:   a.svc.Version(sessionID),
		Currency:  a.config.Currency,
		Members: lo.Map(a.svc.Members(sessionID), func(m ledger.Member, _ int) memberJSON {
			return memberJSON{
				Name:           m.Name,
				Balance:        m.Balance.String(),
				BalanceCents:   int64(m.Balance),
				PaymentAddress: m.PaymentAddress,
			}
		}),
	}
	if d, ok := a.svc.Draft(sessionID); ok {
		dj := &draftJSON{
			Payer:       d.Payer,
			Amount:      d.Amount.String(),
			Description: d.Description,
			Selected:    d.Selected,
		}
		if !d.ExpiresAt.IsZero() {
			dj.ExpiresAt = &d.ExpiresAt
		}
		out.Draft = dj
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleSettlements(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	addrs := a.svc.PaymentAddresses(sessionID)
	out := lo.Map(a.svc.Settlements(sessionID), func(t ledger.Transfer, _ int) transferJSON {
		tj := transferJSON{
			From:        t.From,
			To:          t.To,
			Amount:      t.Amount.String(),
			AmountCents: int64(t.Amount),
		}
		if addr := addrs[t.To]; addr != "" {
			tj.PayLink = commands.UPILink(addr, t.To, t.Amount, a.config.Currency)
		}
		return tj
	})
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	out := lo.Map(a.svc.History(sessionID), func(e ledger.Expense, _ int) expenseJSON {
		return expenseJSON{
			ID:            e.ID,
			Seq:           e.Seq,
			CreatedAt:     e.CreatedAt,
			Description:   e.Description,
			Amount:        e.Amount.String(),
			Payer:         e.Payer,
			Beneficiaries: e.Beneficiaries,
			Share:         e.Share.String(),
		}
	})
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	p := a.svc.PersonalSummary(sessionID, claimsFrom(r.Context()).Username)
	writeJSON(w, http.StatusOK, personalJSON{
		Name:  p.Name,
		Paid:  p.Paid.String(),
		Share: p.Share.String(),
		Net:   p.Net.String(),
	})
}
