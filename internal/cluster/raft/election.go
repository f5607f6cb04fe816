package raft

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// PeerClient is the subset of Client the election driver needs, so tests can
// substitute an in-memory double instead of dialing real TCP sockets.
type PeerClient interface {
	RequestVote(req RequestVoteRequest) (RequestVoteResponse, error)
	AppendEntries(req AppendEntriesRequest) (AppendEntriesResponse, error)
}

// Driver runs one node's election-timeout and leader-heartbeat loop. It is
// split from Node so Node stays a pure state machine that unit tests can
// drive RPC-by-RPC without any goroutines or real time.
type Driver struct {
	node    *Node
	clients map[string]PeerClient
}

func NewDriver(node *Node, clients map[string]PeerClient) *Driver {
	return &Driver{node: node, clients: clients}
}

// Run loops until ctx is cancelled, triggering an election whenever the
// node's randomized election timeout elapses without a heartbeat/vote, and
// sending periodic heartbeats whenever the node is leader.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.node.cfg.HeartbeatInterval)
	defer ticker.Stop()
	timeout := d.node.electionTimeout()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if d.node.State() == Leader {
				d.sendHeartbeats(ctx)
				continue
			}
			if d.node.electionTimedOut(timeout) {
				timeout = d.node.electionTimeout()
				d.runElection(ctx)
			}
		}
	}
}

// runElection performs a pre-vote round first (spec §4.K), and only
// proceeds to a real, term-incrementing election if a majority of the
// cluster (this node plus every configured peer, with unreachable peers
// counted as refusals) indicates it would grant the vote.
func (d *Driver) runElection(ctx context.Context) {
	lastIdx, lastTerm := d.node.lastLogIndexTerm()
	term := d.node.Term()

	if !d.quorumWouldGrant(ctx, RequestVoteRequest{
		Term: term + 1, CandidateID: d.node.cfg.NodeID,
		LastLogIndex: lastIdx, LastLogTerm: lastTerm, IsPreVote: true,
	}) {
		return
	}

	d.node.mu.Lock()
	d.node.state = Candidate
	d.node.currentTerm++
	d.node.votedFor = d.node.cfg.NodeID
	d.node.electionResetAt = d.node.clock.Now()
	newTerm := d.node.currentTerm
	d.node.mu.Unlock()

	if !d.quorumWouldGrant(ctx, RequestVoteRequest{
		Term: newTerm, CandidateID: d.node.cfg.NodeID,
		LastLogIndex: lastIdx, LastLogTerm: lastTerm, IsPreVote: false,
	}) {
		return
	}

	d.node.mu.Lock()
	if d.node.state == Candidate && d.node.currentTerm == newTerm {
		d.node.state = Leader
		lastIdx, _ := d.node.lastLogIndexTerm()
		for id := range d.clients {
			d.node.nextIndex[id] = lastIdx + 1
			d.node.matchIndex[id] = 0
		}
	}
	d.node.mu.Unlock()
}

// quorumWouldGrant fans a RequestVote out to every peer concurrently via
// errgroup (the same fan-out idiom erigon-lib and cuemby/warren use for
// their worker pools) and reports whether a majority — counting this node's
// own implicit yes vote — granted.
func (d *Driver) quorumWouldGrant(ctx context.Context, req RequestVoteRequest) bool {
	votes := 1 // vote for self
	results := make(chan bool, len(d.clients))
	g, _ := errgroup.WithContext(ctx)
	for _, client := range d.clients {
		client := client
		g.Go(func() error {
			resp, err := client.RequestVote(req)
			results <- err == nil && resp.VoteGranted
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	for granted := range results {
		if granted {
			votes++
		}
	}
	return votes*2 > len(d.clients)+1
}

// sendHeartbeats replicates (or, with no new entries, simply pings) every
// peer in parallel. A follower's rejection due to a log mismatch steps the
// leader down if the follower's term is newer.
func (d *Driver) sendHeartbeats(ctx context.Context) {
	term := d.node.Term()
	g, _ := errgroup.WithContext(ctx)
	for id, client := range d.clients {
		id, client := id, client
		g.Go(func() error {
			d.node.mu.Lock()
			next := d.node.nextIndex[id]
			if next == 0 {
				lastIdx, _ := d.node.lastLogIndexTerm()
				next = lastIdx + 1
			}
			prevIdx := next - 1
			prevTerm := uint64(0)
			if prevIdx < uint64(len(d.node.entries)) {
				prevTerm = d.node.entries[prevIdx].Term
			}
			var entries []LogEntry
			if next < uint64(len(d.node.entries)) {
				entries = append(entries, d.node.entries[next:]...)
			}
			commit := d.node.commitIndex
			d.node.mu.Unlock()

			resp, err := client.AppendEntries(AppendEntriesRequest{
				Term: term, LeaderID: d.node.cfg.NodeID,
				PrevLogIndex: prevIdx, PrevLogTerm: prevTerm,
				Entries: entries, LeaderCommit: commit,
			})
			if err != nil {
				d.node.MarkDisconnected(id)
				return nil
			}

			d.node.mu.Lock()
			defer d.node.mu.Unlock()
			if resp.Term > d.node.currentTerm {
				d.node.currentTerm = resp.Term
				d.node.state = Follower
				d.node.votedFor = ""
				return nil
			}
			if resp.Success {
				d.node.matchIndex[id] = resp.MatchIndex
				d.node.nextIndex[id] = resp.MatchIndex + 1
				d.advanceCommitLocked()
			} else if resp.ConflictIndex > 0 {
				d.node.nextIndex[id] = resp.ConflictIndex
			} else if d.node.nextIndex[id] > 1 {
				d.node.nextIndex[id]--
			}
			return nil
		})
	}
	_ = g.Wait()
}

// advanceCommitLocked moves commitIndex forward to the highest index
// replicated to a majority of nodes in the leader's current term. Caller
// must hold node.mu.
func (d *Driver) advanceCommitLocked() {
	n := d.node
	lastIdx, _ := n.lastLogIndexTerm()
	for idx := lastIdx; idx > n.commitIndex; idx-- {
		if idx >= uint64(len(n.entries)) || n.entries[idx].Term != n.currentTerm {
			continue
		}
		count := 1
		for _, m := range n.matchIndex {
			if m >= idx {
				count++
			}
		}
		if count*2 > len(d.clients)+1 {
			n.commitIndex = idx
			n.applyCommitted()
			return
		}
	}
}
