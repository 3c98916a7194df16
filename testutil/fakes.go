package testutil

import (
	"BUREAU/models"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Detector returns a fixed encoding for every image, or Err when set.
type Detector struct {
	Disabled bool
	Encoding models.FaceEncoding
	Err      error

	mu    sync.Mutex
	Calls int
}

func (d *Detector) Available() bool { return !d.Disabled }

func (d *Detector) Encode(context.Context, []byte) (models.FaceEncoding, error) {
	d.mu.Lock()
	d.Calls++
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	if d.Encoding == nil {
		return nil, nil
	}
	return append(models.FaceEncoding(nil), d.Encoding...), nil
}

// Alert is one message recorded by Notifier.
type Alert struct {
	Contact string
	Message string
}

// Notifier records alerts and fails with Err when set.
type Notifier struct {
	Err error

	mu     sync.Mutex
	alerts []Alert
}

func (n *Notifier) SendAlert(_ context.Context, contact, message string) error {
	if n.Err != nil {
		return n.Err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, Alert{Contact: contact, Message: message})
	return nil
}

func (n *Notifier) Alerts() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert(nil), n.alerts...)
}

// ErrObjectNotFound is returned by Store for unknown URLs.
var ErrObjectNotFound = errors.New("object not found")

// Store is an in-memory object store that also serves as a snapshot
// fetcher. URLs look like mem://<name>.
type Store struct {
	PutErr error

	mu      sync.Mutex
	objects map[string][]byte
}

func NewStore() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) Put(_ context.Context, data []byte, name, _ string) (string, error) {
	if s.PutErr != nil {
		return "", s.PutErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	url := "mem://" + name
	s.objects[url] = append([]byte(nil), data...)
	return url, nil
}

func (s *Store) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[url]; !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, url)
	}
	delete(s.objects, url)
	return nil
}

func (s *Store) Remote() bool { return false }

func (s *Store) Fetch(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, url)
	}
	return data, nil
}

// Has reports whether an object named with the given prefix exists.
func (s *Store) Has(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for url := range s.objects {
		if strings.HasPrefix(url, "mem://"+prefix) {
			return true
		}
	}
	return false
}
