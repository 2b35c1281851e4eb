// Package demo is a small users/posts model used by the CLI and the server
// tests. Data comes from a YAML fixture; the default fixture is embedded.
package demo

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

//go:embed fixture.yaml
var defaultFixture []byte

type User struct {
	ID      int    `yaml:"id" json:"id"`
	First   string `yaml:"first" json:"first"`
	Last    string `yaml:"last" json:"last"`
	Email   string `yaml:"email" json:"-"`
	Manager int    `yaml:"manager,omitempty" json:"manager,omitempty"`
}

type Post struct {
	ID        int    `yaml:"id" json:"id"`
	Author    int    `yaml:"author" json:"author"`
	Title     string `yaml:"title" json:"title"`
	Published bool   `yaml:"published" json:"published"`
}

// Store is an in-memory, read-only copy of a fixture. Fetch counters let
// tests observe how often the model reached the store.
type Store struct {
	Users []User `yaml:"users"`
	Posts []Post `yaml:"posts"`

	userIndex map[int]User
	fetches   atomic.Int64
}

// Load decodes a fixture from r.
func Load(r io.Reader) (*Store, error) {
	var s Store
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile decodes the fixture at path.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Default returns a store over the embedded fixture.
func Default() *Store {
	var s Store
	if err := yaml.Unmarshal(defaultFixture, &s); err != nil {
		panic(err)
	}
	if err := s.index(); err != nil {
		panic(err)
	}
	return &s
}

func (s *Store) index() error {
	s.userIndex = make(map[int]User, len(s.Users))
	for _, u := range s.Users {
		if _, dup := s.userIndex[u.ID]; dup {
			return fmt.Errorf("fixture: duplicate user id %d", u.ID)
		}
		s.userIndex[u.ID] = u
	}
	for _, p := range s.Posts {
		if _, ok := s.userIndex[p.Author]; !ok {
			return fmt.Errorf("fixture: post %d has unknown author %d", p.ID, p.Author)
		}
	}
	return nil
}

// Fetches returns the number of batched store reads so far.
func (s *Store) Fetches() int64 { return s.fetches.Load() }

// ListUsers returns the users in id order, restricted to ids when given.
func (s *Store) ListUsers(ids []int, limit int) []User {
	s.fetches.Add(1)
	var out []User
	if len(ids) > 0 {
		for _, id := range ids {
			if u, ok := s.userIndex[id]; ok {
				out = append(out, u)
			}
		}
	} else {
		out = append(out, s.Users...)
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UsersByID returns the users among ids that exist.
func (s *Store) UsersByID(ids []int) map[int]User {
	s.fetches.Add(1)
	out := make(map[int]User, len(ids))
	for _, id := range ids {
		if u, ok := s.userIndex[id]; ok {
			out[id] = u
		}
	}
	return out
}

// PostQuery filters posts per author.
type PostQuery struct {
	// Limit caps the posts per author; 0 means no cap.
	Limit         int
	PublishedOnly bool
}

// PostsByAuthor returns posts for every requested author, keeping fixture
// order. Authors without posts map to an empty list.
func (s *Store) PostsByAuthor(authors []int, q PostQuery) map[int][]Post {
	s.fetches.Add(1)
	out := make(map[int][]Post, len(authors))
	for _, a := range authors {
		out[a] = []Post{}
	}
	for _, p := range s.Posts {
		list, ok := out[p.Author]
		if !ok || (q.PublishedOnly && !p.Published) {
			continue
		}
		if q.Limit > 0 && len(list) >= q.Limit {
			continue
		}
		out[p.Author] = append(list, p)
	}
	return out
}
