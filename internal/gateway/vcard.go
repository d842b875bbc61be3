package gateway

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/imorning/chat/internal/profile"
)

var (
	vCardQuery = []byte(`<vCard xmlns='vcard-temp'/>`)
	pingQuery  = []byte(`<ping xmlns='urn:xmpp:ping'/>`)
)

// vCard is the subset of a vcard-temp card shown for the account.
type vCard struct {
	XMLName  xml.Name `xml:"vCard"`
	FullName string   `xml:"FN"`
	Nickname string   `xml:"NICKNAME"`
	Tel      []struct {
		Number string `xml:"NUMBER"`
	} `xml:"TEL"`
	Photo struct {
		ExtVal string `xml:"EXTVAL"`
	} `xml:"PHOTO"`
	Desc string `xml:"DESC"`
}

// parseVCard converts a vCard payload into the profile of accountID.
// An empty payload means the account has no card.
func parseVCard(accountID string, payload []byte) (*profile.Profile, error) {
	p := &profile.Profile{AccountID: accountID}
	if len(bytes.TrimSpace(payload)) == 0 {
		return p, nil
	}

	var card vCard
	if err := xml.Unmarshal(payload, &card); err != nil {
		return nil, fmt.Errorf("invalid vCard: %w", err)
	}

	p.Nickname = strings.TrimSpace(card.Nickname)
	if p.Nickname == "" {
		p.Nickname = strings.TrimSpace(card.FullName)
	}
	for _, tel := range card.Tel {
		if n := strings.TrimSpace(tel.Number); n != "" {
			p.Phone = n
			break
		}
	}
	p.AvatarURL = strings.TrimSpace(card.Photo.ExtVal)
	p.Bio = strings.TrimSpace(card.Desc)
	return p, nil
}
