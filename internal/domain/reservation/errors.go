package reservation

import "errors"

// Reservation ドメインのエラー定義
// PIN確認系のメッセージはそのまま画面に表示されるため英語の固定文言
var (
	ErrPinNotFound         = errors.New("PIN not found.")
	ErrPinAlreadyConfirmed = errors.New("PIN is already confirmed.")
	ErrPinAlreadyExpired   = errors.New("PIN is already expired.")
	ErrPinNotYetActive     = errors.New("Pin is not yet active")

	ErrPinCodeTaken       = errors.New("PINコードが既に使用されています")
	ErrPinSpaceExhausted  = errors.New("一意なPINコードを生成できませんでした")
	ErrTimeNotFuture      = errors.New("予約時刻は未来の時刻を指定してください")
	ErrFirstNameRequired  = errors.New("名は必須です")
	ErrLastNameRequired   = errors.New("姓は必須です")
	ErrPhoneRequired      = errors.New("電話番号は必須です")
	ErrPinCodeRequired    = errors.New("PINコードは必須です")
	ErrInvalidPinWindow   = errors.New("PIN有効期間の開始は終了より前である必要があります")
	ErrTooManyPinAttempts = errors.New("PIN確認の試行回数が上限を超えました")
)
