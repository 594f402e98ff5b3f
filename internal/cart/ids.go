package cart

import (
	"bytes"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/toko-cart/internal/common"
)

const maxSessionIDLen = 128

// Identity names the owner of a cart: a registered user or an anonymous
// session. When both are present the user wins.
type Identity struct {
	UserID    string
	SessionID string
}

func (i Identity) resolve() (pgtype.UUID, pgtype.Text, error) {
	if user := strings.TrimSpace(i.UserID); user != "" {
		id, err := toUUID(user)
		if err != nil {
			return pgtype.UUID{}, pgtype.Text{}, common.BadRequest("invalid user id", err)
		}
		return id, pgtype.Text{}, nil
	}
	session := strings.TrimSpace(i.SessionID)
	if session == "" {
		return pgtype.UUID{}, pgtype.Text{}, missingIdentity()
	}
	if len(session) > maxSessionIDLen {
		return pgtype.UUID{}, pgtype.Text{}, common.BadRequest("session id too long", nil)
	}
	return pgtype.UUID{}, pgtype.Text{String: session, Valid: true}, nil
}

func toUUID(value string) (pgtype.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}

func parseID(value, what string) (pgtype.UUID, error) {
	id, err := toUUID(value)
	if err != nil {
		return pgtype.UUID{}, common.BadRequest("invalid "+what, err)
	}
	return id, nil
}

// UUIDString renders a pgtype.UUID in canonical form, or "" when invalid.
func UUIDString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}

func uuidLess(a, b pgtype.UUID) bool {
	return bytes.Compare(a.Bytes[:], b.Bytes[:]) < 0
}
