package ingest

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	pingerr "github.com/ping-mem/pingmem/internal/errors"
	"github.com/ping-mem/pingmem/internal/graph"
)

// commitHistoryLimit bounds how far back commit ingestion walks.
const commitHistoryLimit = 200

type commitInfo struct {
	Hash       string
	AuthorDate time.Time
	Author     string
	Subject    string
}

// ingestCommits records commit entities linked to the project. A
// missing git binary or a non-repository directory is not an error:
// ingestion proceeds with zero commits.
func (p *Pipeline) ingestCommits(ctx context.Context, absRoot, projectID string) (int, error) {
	commits, err := readCommits(ctx, absRoot)
	if err != nil {
		p.logger.Info("commit history unavailable",
			slog.String("project_id", projectID),
			slog.String("reason", err.Error()))
		return 0, nil
	}

	indexed := 0
	for _, c := range commits {
		id := "commit-" + c.Hash
		if _, err := p.graph.GetEntity(ctx, id); err == nil {
			continue
		} else if !pingerr.IsNotFound(err) {
			return indexed, err
		}

		err := p.graph.CreateEntity(ctx, &graph.Entity{
			ID:        id,
			Type:      graph.EntityCommit,
			Name:      shortHash(c.Hash),
			ProjectID: projectID,
			EventTime: c.AuthorDate,
			Properties: graph.Properties{
				"hash":    c.Hash,
				"author":  c.Author,
				"message": c.Subject,
			},
		})
		if err != nil {
			return indexed, err
		}
		err = p.ensureRelationship(ctx, &graph.Relationship{
			ID:        relID("contains", projectID, id),
			Type:      graph.RelContains,
			SourceID:  projectID,
			TargetID:  id,
			Weight:    1,
			ProjectID: projectID,
		})
		if err != nil {
			return indexed, err
		}
		indexed++
	}
	return indexed, nil
}

func readCommits(ctx context.Context, absRoot string) ([]commitInfo, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", absRoot, "log",
		"--pretty=format:%H%x1f%at%x1f%an%x1f%s",
		"-n", strconv.Itoa(commitHistoryLimit))
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var commits []commitInfo
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.SplitN(line, "\x1f", 4)
		if len(parts) != 4 {
			continue
		}
		epoch, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, commitInfo{
			Hash:       parts[0],
			AuthorDate: time.Unix(epoch, 0).UTC(),
			Author:     parts[2],
			Subject:    parts[3],
		})
	}
	return commits, nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
