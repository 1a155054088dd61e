// Package permission keeps the runtime permission grants the location flow
// depends on, and answers pending permission requests.
package permission

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// Permission names a runtime permission.
type Permission string

const (
	AccessFineLocation   Permission = "ACCESS_FINE_LOCATION"
	AccessCoarseLocation Permission = "ACCESS_COARSE_LOCATION"
)

// Parse accepts the known permission names.
func Parse(s string) (Permission, error) {
	switch p := Permission(s); p {
	case AccessFineLocation, AccessCoarseLocation:
		return p, nil
	default:
		return "", fmt.Errorf("unknown permission %q", s)
	}
}

// Result is the outcome of a permission check.
type Result int

const (
	Denied Result = iota
	Granted
)

func (r Result) String() string {
	if r == Granted {
		return "granted"
	}
	return "denied"
}

// ResultHandler receives the answer to a request made with Request.
type ResultHandler func(requestCode int, permissions []Permission, results []Result)

// Store tracks which permissions have been granted. It is safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	granted map[Permission]bool
	pending map[int][]Permission
	handler ResultHandler
}

// NewStore returns a store with the given permissions granted.
func NewStore(granted ...Permission) *Store {
	s := &Store{
		granted: make(map[Permission]bool),
		pending: make(map[int][]Permission),
	}
	for _, p := range granted {
		s.granted[p] = true
	}
	return s
}

// SetResultHandler installs the callback that receives request answers.
func (s *Store) SetResultHandler(h ResultHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Check reports whether p is granted.
func (s *Store) Check(p Permission) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.granted[p] {
		return Granted
	}
	return Denied
}

// Request records a pending request. It is answered by the next Resolve.
func (s *Store) Request(perms []Permission, requestCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[requestCode] = append([]Permission(nil), perms...)
	log.Printf("Permission request %d pending for %v", requestCode, perms)
}

// Grant marks perms as granted.
func (s *Store) Grant(perms ...Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		s.granted[p] = true
	}
}

// Revoke withdraws perms.
func (s *Store) Revoke(perms ...Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		delete(s.granted, p)
	}
}

// Pending reports the request codes still waiting for an answer.
func (s *Store) Pending() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]int, 0, len(s.pending))
	for code := range s.pending {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// Resolve answers every pending request with the current grants. It returns
// the number of requests answered.
func (s *Store) Resolve() int {
	s.mu.Lock()
	type answer struct {
		code    int
		perms   []Permission
		results []Result
	}
	answers := make([]answer, 0, len(s.pending))
	for code, perms := range s.pending {
		results := make([]Result, len(perms))
		for i, p := range perms {
			if s.granted[p] {
				results[i] = Granted
			}
		}
		answers = append(answers, answer{code: code, perms: perms, results: results})
	}
	s.pending = make(map[int][]Permission)
	handler := s.handler
	s.mu.Unlock()

	sort.Slice(answers, func(i, j int) bool { return answers[i].code < answers[j].code })
	if handler == nil {
		return len(answers)
	}
	for _, a := range answers {
		handler(a.code, a.perms, a.results)
	}
	return len(answers)
}
