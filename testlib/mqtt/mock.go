// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Mock mqtt client that records published messages and can be used for
// testing.
type MockClient struct {
	lock sync.Mutex
	// Published objects by topic, in publish order.
	Published map[string][]any
}

func (m *MockClient) Publish(topic string, payload any) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.Published == nil {
		m.Published = map[string][]any{}
	}
	m.Published[topic] = append(m.Published[topic], payload)
}

func (m *MockClient) Connect() error {
	return nil
}

func (m *MockClient) Disconnect() {
	// Do nothing
}

func (m *MockClient) Subscribe(topic string, callback pahomqtt.MessageHandler) error {
	return nil
}
