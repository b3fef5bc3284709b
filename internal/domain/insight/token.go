package insight

import "github.com/google/uuid"

// Token identifies one logical analysis attempt. Tokens compare by their
// generation; the UUID is what logs and clients see.
type Token struct {
	Seq uint64
	ID  uuid.UUID
}

// IsZero reports whether t is the "no request" token.
func (t Token) IsZero() bool {
	return t.Seq == 0
}

func (t Token) String() string {
	if t.IsZero() {
		return ""
	}
	return t.ID.String()
}

// generation mints tokens and tracks which one is current. It is not safe
// for concurrent use; the coordinator guards it with its mutex.
type generation struct {
	seq     uint64
	current Token
}

func (g *generation) next() Token {
	g.seq++
	g.current = Token{Seq: g.seq, ID: uuid.New()}
	return g.current
}

func (g *generation) isCurrent(t Token) bool {
	return !t.IsZero() && g.current.Seq == t.Seq
}

func (g *generation) invalidate() {
	g.current = Token{}
}
