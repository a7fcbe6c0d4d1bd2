package domain

// User is the persisted account a connection may optionally be bound to.
// Room scores never touch this record; only the round-end stat increments do.
type User struct {
	Id       string
	Username string
	Avatar   string

	GamesPlayed       int
	GamesWon          int
	TotalScore        int
	CorrectGuesses    int
	DrawingsCompleted int
}

// Stat field names accepted by the stats sink.
const (
	StatGamesPlayed       = "games_played"
	StatGamesWon          = "games_won"
	StatTotalScore        = "total_score"
	StatCorrectGuesses    = "correct_guesses"
	StatDrawingsCompleted = "drawings_completed"
)
