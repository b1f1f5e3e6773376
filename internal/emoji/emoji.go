package emoji

// https://unicode.org/emoji/charts/full-emoji-list.html
const (
	Confirm = "✅"
	Error   = "🚫"
	Open    = "🔔"
	Lock    = "🔒"
	Unlock  = "🔓"
	Money   = "💰"
	Warning = "⚠️"
	Trash   = "🗑️"
)

// MapOpen marks an open or claimed ticket.
func MapOpen(open bool) string {
	if open {
		return Open
	}
	return Lock
}
