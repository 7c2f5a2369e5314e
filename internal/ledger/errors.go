package ledger

import "errors"

var (
	ErrInvalidInput   = errors.New("入力が不正です")
	ErrUnknownMember  = errors.New("メンバーではありません")
	ErrEmptySelection = errors.New("対象者を1人以上選んでください")
	ErrNoActiveDraft  = errors.New("入力中の支出がありません")
	ErrDraftPending   = errors.New("別の支出を入力中です")
)
