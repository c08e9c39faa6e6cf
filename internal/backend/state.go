package backend

import (
	"sync"
	"time"
)

// driverState holds the mutable Info fields of a driver under a mutex.
// Drivers update it from probe and health paths; the manager reads
// snapshots from the health loop and the UI surface.
type driverState struct {
	mu   sync.Mutex
	info Info
}

func newDriverState(name string, t Type, host string, port int) *driverState {
	return &driverState{info: Info{
		Name:   name,
		Type:   t,
		Host:   host,
		Port:   port,
		Status: StatusUnknown,
	}}
}

func (s *driverState) setStatus(status Status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Status = status
	s.info.ErrorMessage = errMsg
	now := time.Now()
	s.info.LastCheck = &now
}

func (s *driverState) setVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Version = version
}

func (s *driverState) setModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Model = model
}

func (s *driverState) setCapabilities(caps []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Capabilities = caps
}

func (s *driverState) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Status
}

func (s *driverState) snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.info
	if s.info.LastCheck != nil {
		t := *s.info.LastCheck
		out.LastCheck = &t
	}
	if len(s.info.Capabilities) > 0 {
		out.Capabilities = append([]string(nil), s.info.Capabilities...)
	}
	return out
}
