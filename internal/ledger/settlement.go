package ledger

// ComputeSettlements reduces balances to debtor→creditor transfers with a single
// greedy pass. Debtors and creditors are matched in input order, so callers pass
// balances in roster order to get a stable result. The input is not modified.
//
// The pass emits at most |debtors|+|creditors|-1 transfers. It is not guaranteed to
// find the globally smallest set for every ordering.
func ComputeSettlements(balances []Balance) []Transfer {
	type side struct {
		name   string
		remain Amount
	}
	var debtors, creditors []side
	for _, b := range balances {
		switch {
		case b.Amount < -Epsilon:
			debtors = append(debtors, side{name: b.Member, remain: -b.Amount})
		case b.Amount > Epsilon:
			creditors = append(creditors, side{name: b.Member, remain: b.Amount})
		}
	}

	var out []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		d := &debtors[i]
		c := &creditors[j]
		amt := min(d.remain, c.remain)
		out = append(out, Transfer{From: d.name, To: c.name, Amount: amt})
		d.remain -= amt
		c.remain -= amt
		if d.remain <= Epsilon {
			i++
		}
		if c.remain <= Epsilon {
			j++
		}
	}
	return out
}
