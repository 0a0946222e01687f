package gitexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Git runs git commands in one repo. The zero value is not usable, call New.
type Git struct {
	gitCommand string
	repoDir    string
}

func New(repoDir string) *Git {
	s := &Git{}
	s.gitCommand = "git"
	s.repoDir = repoDir
	return s
}

// Output runs the command and returns stdout with surrounding whitespace
// trimmed. Most plumbing commands used here emit a single line.
func (s *Git) Output(ctx context.Context, args ...string) (string, error) {
	buf := bytes.NewBuffer(nil)
	err := s.ExecIntoWriter(ctx, buf, args)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// Exec runs the command and returns raw stdout.
func (s *Git) Exec(ctx context.Context, args ...string) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	err := s.ExecIntoWriter(ctx, buf, args)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Git) ExecIntoWriter(ctx context.Context, wr io.Writer, args []string) error {
	c := exec.CommandContext(ctx, s.gitCommand, args...)
	c.Dir = s.repoDir
	c.Stderr = os.Stderr
	c.Stdout = wr
	if err := c.Run(); err != nil {
		return cmdErr(s.gitCommand, args, err)
	}
	return nil
}

// ExecEnv is ExecIntoWriter with extra environment entries and stdin. Used
// for commit-tree, which takes author/committer identity from the env.
func (s *Git) ExecEnv(ctx context.Context, wr io.Writer, stdin io.Reader, env []string, args ...string) error {
	c := exec.CommandContext(ctx, s.gitCommand, args...)
	c.Dir = s.repoDir
	c.Env = append(os.Environ(), env...)
	c.Stdin = stdin
	c.Stderr = os.Stderr
	c.Stdout = wr
	if err := c.Run(); err != nil {
		return cmdErr(s.gitCommand, args, err)
	}
	return nil
}

func cmdErr(gitCommand string, args []string, err error) error {
	return fmt.Errorf("failed executing `%v %v`: %v", gitCommand, strings.Join(args, " "), err)
}
