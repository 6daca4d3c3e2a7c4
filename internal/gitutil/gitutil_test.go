package gitutil

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedRepo records invocations and returns canned output per subcommand.
func scriptedRepo(outputs map[string]string, fail map[string]error, calls *[][]string) *Repo {
	r := New(".")
	r.run = func(_ context.Context, args ...string) (string, error) {
		*calls = append(*calls, args)
		key := args[0]
		if err, ok := fail[key]; ok {
			return "", err
		}
		return outputs[key], nil
	}
	return r
}

func TestCommitAllSkipsCleanTree(t *testing.T) {
	var calls [][]string
	r := scriptedRepo(map[string]string{"status": ""}, nil, &calls)

	if err := r.CommitAll(context.Background(), "update artifacts"); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	for _, c := range calls {
		if c[0] == "commit" || c[0] == "add" {
			t.Errorf("clean tree should not run %v", c)
		}
	}
}

func TestCommitAllStagesAndCommits(t *testing.T) {
	var calls [][]string
	r := scriptedRepo(map[string]string{"status": " M file.md"}, nil, &calls)

	if err := r.CommitAll(context.Background(), "update artifacts"); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	var seq []string
	for _, c := range calls {
		seq = append(seq, c[0])
	}
	joined := strings.Join(seq, ",")
	if joined != "status,add,commit" {
		t.Errorf("call sequence = %s", joined)
	}
}

func TestCurrentBranch(t *testing.T) {
	var calls [][]string
	r := scriptedRepo(map[string]string{"rev-parse": "main\n"}, nil, &calls)

	branch, err := r.CurrentBranch(context.Background())
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("branch = %q, want main", branch)
	}
}

func TestPushWrapsFailure(t *testing.T) {
	var calls [][]string
	bang := errors.New("remote rejected")
	r := scriptedRepo(nil, map[string]error{"push": bang}, &calls)

	err := r.Push(context.Background())
	if !errors.Is(err, bang) {
		t.Fatalf("Push error = %v, want wrapped cause", err)
	}
}
