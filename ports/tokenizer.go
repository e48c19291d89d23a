package ports

import "github.com/flywheel-fi/flywheel/core"

// Tokenizer converts sessions to and from signed bearer tokens.
type Tokenizer interface {
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
}
