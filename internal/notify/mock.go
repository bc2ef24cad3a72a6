package notify

import (
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, event *Event) {
	m.Called(topic, event)
}
