//go:build integration

package natskv

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/natsclient"
)

// DirectorySuite shares one NATS container; every test gets its own
// pair of buckets
type DirectorySuite struct {
	suite.Suite
	tc     *natsclient.TestClient
	ctx    context.Context
	cancel context.CancelFunc
	dir    *Directory
	n      int
}

func TestDirectorySuite(t *testing.T) {
	suite.Run(t, new(DirectorySuite))
}

func (s *DirectorySuite) SetupSuite() {
	s.tc = natsclient.NewTestClient(s.T(), natsclient.WithJetStream())
}

func (s *DirectorySuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)
	s.n++

	d, err := New(s.ctx, s.tc.Client, Config{
		ValuesBucket: fmt.Sprintf("VARS_%d", s.n),
		MetaBucket:   fmt.Sprintf("META_%d", s.n),
	}, nil)
	s.Require().NoError(err)
	s.dir = d
}

func (s *DirectorySuite) TearDownTest() {
	s.NoError(s.dir.Close())
	s.cancel()
}

func (s *DirectorySuite) TestDefineLookupRead() {
	d, ctx := s.dir, s.ctx

	s.Require().NoError(d.Define(ctx, directory.Var{Name: "/gps/lat", InstanceID: 2, Tags: []string{"gps"}}, "51.5"))
	s.Require().NoError(d.Define(ctx, directory.Var{Name: "/gps/lat", InstanceID: 1, Tags: []string{"gps"}}, "50.1"))

	v, err := d.Lookup(ctx, "/gps/lat")
	s.Require().NoError(err)
	s.Equal(uint32(1), v.InstanceID)
	s.Equal([]string{"gps"}, v.Tags)

	val, err := d.Read(ctx, v)
	s.Require().NoError(err)
	s.Equal("50.1", val)

	_, err = d.Lookup(ctx, "/gps/none")
	s.ErrorIs(err, errors.ErrNotFound)

	_, err = d.Read(ctx, directory.Var{Name: "/gps/none"})
	s.ErrorIs(err, errors.ErrNotFound)
}

func (s *DirectorySuite) TestSearchSorted() {
	for _, v := range []directory.Var{
		{Name: "b", Tags: []string{"x"}},
		{Name: "a", InstanceID: 2, Tags: []string{"x"}},
		{Name: "a", InstanceID: 1, Tags: []string{"x"}},
		{Name: "c"},
	} {
		s.Require().NoError(s.dir.Define(s.ctx, v, ""))
	}

	got, err := s.dir.Search(s.ctx, directory.MatchFunc(func(v directory.Var) bool { return v.HasTag("x") }))
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal("[1]a", got[0].Key())
	s.Equal("[2]a", got[1].Key())
	s.Equal("b", got[2].Key())
}

func (s *DirectorySuite) TestWriteAndWatch() {
	watchCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	changes, err := s.dir.Watch(watchCtx)
	s.Require().NoError(err)

	s.Require().NoError(s.dir.Write(s.ctx, "/varmsg/gps/enable", "0"))

	select {
	case c := <-changes:
		s.Equal("/varmsg/gps/enable", c.Var.Name)
		s.Equal("0", c.Value)
	case <-s.ctx.Done():
		s.FailNow("no change")
	}

	v, err := s.dir.Lookup(s.ctx, "/varmsg/gps/enable")
	s.Require().NoError(err)
	s.Equal(uint32(0), v.InstanceID)

	cancel()
	s.Eventually(func() bool {
		_, ok := <-changes
		return !ok
	}, 5*time.Second, 50*time.Millisecond)
}
