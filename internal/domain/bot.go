package domain

import "time"

// Bot is a registered external move provider. The arena never inspects how a
// bot picks moves; it only calls the endpoint.
type Bot struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Endpoint  string     `json:"endpoint"`
	APIKey    string     `json:"-"`
	Games     []GameType `json:"games"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

// PlaysGame reports whether the bot is registered for the given game type.
func (b *Bot) PlaysGame(game GameType) bool {
	for _, g := range b.Games {
		if g == game {
			return true
		}
	}
	return false
}
