package service

import (
	"crypto/rsa"
	"sync"
	"time"

	"github.com/turtacn/authenticator/internal/domain/models"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// fakeDecoder returns the payload registered for an envelope id.
type fakeDecoder struct {
	mu       sync.Mutex
	payloads map[string]*models.AuthorizationData
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{payloads: map[string]*models.AuthorizationData{}}
}

func (d *fakeDecoder) register(data *models.AuthorizationData) *models.EncryptedData {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := data.ConnectionID + "/" + data.ID
	d.payloads[key] = data
	return &models.EncryptedData{ID: data.ID, ConnectionID: data.ConnectionID, Algorithm: "AES-256-CBC"}
}

func (d *fakeDecoder) Decrypt(envelope *models.EncryptedData, key *rsa.PrivateKey) *models.AuthorizationData {
	if envelope == nil || key == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.payloads[envelope.ConnectionID+"/"+envelope.ID]
	if !ok {
		return nil
	}
	clone := *data
	return &clone
}

func payload(connectionID, id string) *models.AuthorizationData {
	createdAt := baseTime
	return &models.AuthorizationData{
		ID:                id,
		ConnectionID:      connectionID,
		Title:             "Payment " + id,
		Description:       "Pay 10 EUR",
		CreatedAt:         &createdAt,
		ExpiresAt:         baseTime.Add(5 * time.Minute),
		AuthorizationCode: "code-" + id,
	}
}

func activeConnection(id string) *models.Connection {
	return &models.Connection{
		ID:          id,
		Name:        "Bank " + id,
		ConnectURL:  "https://" + id + ".example",
		AccessToken: "token-" + id,
		Status:      models.ConnectionStatusActive,
	}
}

// recordingListener collects callbacks of both interactor kinds.
type recordingListener struct {
	mu          sync.Mutex
	items       []*models.AuthorizationItem
	lists       [][]*models.AuthorizationItem
	messages    []string
	invalidated int
	dropped     []string
}

func (l *recordingListener) OnItemChanged(item *models.AuthorizationItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, item)
}

func (l *recordingListener) OnItemsChanged(items []*models.AuthorizationItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lists = append(l.lists, items)
}

func (l *recordingListener) OnErrorMessage(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, message)
}

func (l *recordingListener) OnConnectionInvalidated() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidated++
}

func (l *recordingListener) OnConnectionsInvalidated(ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropped = append(l.dropped, ids...)
}

func (l *recordingListener) itemCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *recordingListener) firstItem() *models.AuthorizationItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return nil
	}
	return l.items[0]
}

func (l *recordingListener) lastList() []*models.AuthorizationItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lists) == 0 {
		return nil
	}
	return l.lists[len(l.lists)-1]
}

func (l *recordingListener) listCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lists)
}

func (l *recordingListener) messageList() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func (l *recordingListener) invalidations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.invalidated
}

func (l *recordingListener) droppedConnections() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.dropped...)
}
