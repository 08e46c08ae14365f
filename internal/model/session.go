// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
)

// ChatID identifies a chat on the service. The empty ChatID means "no chat"
// and encodes as JSON null.
type ChatID string

// NoChat is the empty chat identity.
const NoChat ChatID = ""

// IsZero reports whether id is empty.
func (id ChatID) IsZero() bool {
	return id == NoChat
}

// String returns the raw identifier.
func (id ChatID) String() string {
	return string(id)
}

// MarshalJSON encodes the empty id as null.
func (id ChatID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts null, strings and bare numbers.
func (id *ChatID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = NoChat
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ChatID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ChatID(n.String())
	return nil
}

// ChatSession is the identity and title of the active chat. It owns no
// messages.
type ChatSession struct {
	ActiveChatID ChatID `json:"active_chat_id"`
	ChatTitle    string `json:"chat_title"`
}

// IsEmpty reports whether no chat is active.
func (s ChatSession) IsEmpty() bool {
	return s.ActiveChatID.IsZero() && s.ChatTitle == ""
}
