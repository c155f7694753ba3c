package model

import "time"

// Conversation は出品者とのメッセージのやり取りを表す。
type Conversation struct {
	ID          string
	PartnerID   string
	PartnerName string
	Preview     string
	UpdatedAt   time.Time
}

// ItemID はViewItemを実装する。
func (c Conversation) ItemID() string { return c.ID }

// Kind はViewItemを実装する。
func (Conversation) Kind() Kind { return KindConversation }

// ChangedFields はViewItemを実装する。
func (c Conversation) ChangedFields(other ViewItem) Payload {
	o, ok := other.(Conversation)
	if !ok {
		return nil
	}
	p := Payload{}
	if c.PartnerID != o.PartnerID {
		p[FieldPartner] = o.PartnerID
	}
	if c.PartnerName != o.PartnerName {
		p[FieldPartnerName] = o.PartnerName
	}
	if c.Preview != o.Preview {
		p[FieldPreview] = o.Preview
	}
	if !c.UpdatedAt.Equal(o.UpdatedAt) {
		p[FieldUpdatedAt] = o.UpdatedAt
	}
	return p
}

func (c Conversation) apply(p Payload) ViewItem {
	out := c
	for f, v := range p {
		switch f {
		case FieldPartner:
			out.PartnerID = v.(string)
		case FieldPartnerName:
			out.PartnerName = v.(string)
		case FieldPreview:
			out.Preview = v.(string)
		case FieldUpdatedAt:
			out.UpdatedAt = v.(time.Time)
		}
	}
	return out
}

func (Conversation) isViewItem() {}
