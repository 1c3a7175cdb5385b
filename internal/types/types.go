package types

import "fmt"

// Client -> Server frame kinds.
const (
	MsgCreateLobby      = "CREATE_LOBBY"
	MsgJoinLobby        = "JOIN_LOBBY"
	MsgLeaveLobby       = "LEAVE_LOBBY"
	MsgToggleReady      = "TOGGLE_READY"
	MsgStartGame        = "START_GAME"
	MsgUpdateProfile    = "UPDATE_PROFILE"
	MsgSubmitAnswer     = "SUBMIT_ANSWER"
	MsgSubmitWord       = "SUBMIT_WORD"
	MsgSubmitRaceAnswer = "SUBMIT_RACE_ANSWER"
)

// Server -> Client frame kinds.
const (
	MsgLobbyJoined      = "LOBBY_JOINED"
	MsgRosterUpdate     = "ROSTER_UPDATE"
	MsgLobbyLeft        = "LOBBY_LEFT"
	MsgProfileAck       = "PROFILE_ACK"
	MsgGamePreview      = "GAME_PREVIEW"
	MsgGameTutorial     = "GAME_TUTORIAL"
	MsgCountdown        = "COUNTDOWN"
	MsgNewQuestion      = "NEW_QUESTION"
	MsgNewWords         = "NEW_WORDS"
	MsgRaceQuestion     = "RACE_QUESTION"
	MsgAnswerResult     = "ANSWER_RESULT"
	MsgWordResult       = "WORD_RESULT"
	MsgScoreUpdate      = "SCORE_UPDATE"
	MsgPlayerMoved      = "PLAYER_MOVED"
	MsgPlayerFinished   = "PLAYER_FINISHED"
	MsgRoundEnd         = "ROUND_END"
	MsgTournamentWinner = "TOURNAMENT_WINNER"
	MsgError            = "ERROR"
)

// GameStart returns the round-start frame kind for a 1-based round
// number, e.g. "GAME_1_START".
func GameStart(round int) string {
	return fmt.Sprintf("GAME_%d_START", round)
}

// ClientMessage is the decoded form of every client -> server frame.
// Only the fields relevant to Type are set.
type ClientMessage struct {
	Type      string `json:"type"`
	Capacity  int    `json:"capacity,omitempty"`
	LobbyID   string `json:"lobby_id,omitempty"`
	TestMode  bool   `json:"test_mode,omitempty"`
	Color     string `json:"color,omitempty"`
	Shape     string `json:"shape,omitempty"`
	Answer    string `json:"answer,omitempty"`
	TypedWord string `json:"typed_word,omitempty"`
	// TechSprint: the chosen option index. The legacy is_correct flag is
	// advisory only; the server recomputes correctness against the
	// question it actually issued.
	AnswerIndex *int `json:"answer_index,omitempty"`
	IsCorrect   bool `json:"is_correct,omitempty"`
}

// ServerMessage is the envelope for every server -> client frame.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type LobbyJoinedPayload struct {
	ID       string `json:"id"`
	HostName string `json:"host_name"`
}

type RosterEntry struct {
	Username  string `json:"username"`
	Color     string `json:"color"`
	Shape     string `json:"shape"`
	IsReady   bool   `json:"is_ready"`
	IsHost    bool   `json:"is_host"`
	Connected bool   `json:"connected"`
}

type RosterUpdatePayload struct {
	Players []RosterEntry `json:"players"`
}

type ProfileAckPayload struct {
	Username string `json:"username"`
	Color    string `json:"color"`
	Shape    string `json:"shape"`
}

type GamePreviewPayload struct {
	GameInfo    string `json:"game_info"`
	RoundNumber int    `json:"round_number"`
}

type GameStartPayload struct {
	Duration int `json:"duration"`
	// TechSprint only: track length.
	TotalSteps int `json:"total_steps,omitempty"`
}

type CountdownPayload struct {
	SecondsLeft int `json:"seconds_left"`
}

type NewQuestionPayload struct {
	Text string `json:"text"`
}

type NewWordsPayload struct {
	Words []string `json:"words"`
}

type RaceQuestionPayload struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type AnswerResultPayload struct {
	Correct bool `json:"correct"`
	NewPos  *int `json:"new_pos,omitempty"`
}

type WordResultPayload struct {
	Correct bool `json:"correct"`
}

type ScoreEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

type ScoreUpdatePayload struct {
	Scores []ScoreEntry `json:"scores"`
}

type PlayerMovedPayload struct {
	PlayerID string `json:"player_id"`
	NewPos   int    `json:"new_pos"`
}

type PlayerFinishedPayload struct {
	Rank  int `json:"rank"`
	Bonus int `json:"bonus"`
}

type RoundEndPayload struct {
	Advancing  []string `json:"advancing"`
	Eliminated []string `json:"eliminated"`
	NextGame   string   `json:"next_game,omitempty"`
}

type TournamentWinnerPayload struct {
	Winner string `json:"winner"`
}

type ErrorPayload struct {
	Msg string `json:"msg"`
}

// Err builds the unicast error frame used for every rejected action.
func Err(msg string) ServerMessage {
	return ServerMessage{Type: MsgError, Payload: ErrorPayload{Msg: msg}}
}
