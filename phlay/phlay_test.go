package phlay

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adisho1992/phlay/phlay/conduit"
	"github.com/adisho1992/phlay/phlay/pkg/logger"
	"github.com/adisho1992/phlay/phlay/revwalk"
)

// brokenSource fails every ancestry lookup.
type brokenSource struct{}

func (brokenSource) ResolveRev(ctx context.Context, rev string) (string, error) {
	return "", fmt.Errorf("no such revision %v", rev)
}

func (brokenSource) Parents(ctx context.Context, hash string) ([]string, error) {
	return nil, fmt.Errorf("no such commit %v", hash)
}

func (brokenSource) SecondaryHash(ctx context.Context, hash string) (string, error) {
	return "", nil
}

func TestPublishBaseLookupFailureAborts(t *testing.T) {
	assert := assert.New(t)
	s := &Phlay{
		cache:   revwalk.NewCache(brokenSource{}),
		session: conduit.NewSession(conduit.NewClient("http://review.invalid", "token"), nil),
		log:     logger.NewDefaultLogger(io.Discard),
	}
	plan := []*planned{{commit: &revwalk.Commit{Hash: "g1", Parents: []string{"gone"}}}}

	// the base revision lookup fails before anything is sent
	err := s.publish(context.Background(), plan)
	if assert.Error(err) {
		assert.Contains(err.Error(), "gone")
	}
}
