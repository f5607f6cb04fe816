package raft

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransport = errors.New("transport error")

type fakePeerClient struct {
	voteGranted bool
	voteTerm    uint64
	appendResp  AppendEntriesResponse
	appendErr   error
}

func (c *fakePeerClient) RequestVote(req RequestVoteRequest) (RequestVoteResponse, error) {
	return RequestVoteResponse{Term: c.voteTerm, VoteGranted: c.voteGranted}, nil
}

func (c *fakePeerClient) AppendEntries(req AppendEntriesRequest) (AppendEntriesResponse, error) {
	return c.appendResp, c.appendErr
}

func TestRunElectionWinsWithUnanimousVotes(t *testing.T) {
	n := newTestNode(t, "n1")
	clients := map[string]PeerClient{
		"n2": &fakePeerClient{voteGranted: true},
		"n3": &fakePeerClient{voteGranted: true},
	}
	d := NewDriver(n, clients)
	d.runElection(context.Background())

	if n.State() != Leader {
		t.Fatalf("State = %v, want Leader after a unanimous pre-vote and vote", n.State())
	}
	if n.Term() != 1 {
		t.Fatalf("Term = %d, want 1", n.Term())
	}
}

func TestRunElectionLosesWithoutMajority(t *testing.T) {
	n := newTestNode(t, "n1")
	clients := map[string]PeerClient{
		"n2": &fakePeerClient{voteGranted: false},
		"n3": &fakePeerClient{voteGranted: false},
	}
	d := NewDriver(n, clients)
	d.runElection(context.Background())

	if n.State() == Leader {
		t.Fatal("the node should not become Leader without a majority of votes")
	}
}

func TestQuorumWouldGrantCountsSelfVote(t *testing.T) {
	n := newTestNode(t, "n1")
	clients := map[string]PeerClient{
		"n2": &fakePeerClient{voteGranted: true},
	}
	d := NewDriver(n, clients)
	// Two nodes total (self + n2); self-vote + n2's yes is a 2-of-2 majority.
	if !d.quorumWouldGrant(context.Background(), RequestVoteRequest{Term: 1, CandidateID: "n1"}) {
		t.Fatal("quorumWouldGrant should succeed: self-vote plus n2's yes is unanimous")
	}
}

func TestSendHeartbeatsAdvancesMatchIndexOnSuccess(t *testing.T) {
	n := newTestNode(t, "n1")
	clients := map[string]PeerClient{
		"n2": &fakePeerClient{voteGranted: true},
		"n3": &fakePeerClient{voteGranted: true},
	}
	d := NewDriver(n, clients)
	d.runElection(context.Background())
	if n.State() != Leader {
		t.Fatal("setup: expected the node to win the election")
	}
	n.Propose([]byte("cmd"))

	for id, c := range clients {
		c.(*fakePeerClient).appendResp = AppendEntriesResponse{Term: n.Term(), Success: true, MatchIndex: 1}
		clients[id] = c
	}
	d.sendHeartbeats(context.Background())

	n.mu.Lock()
	defer n.mu.Unlock()
	for id := range clients {
		if n.matchIndex[id] != 1 {
			t.Fatalf("matchIndex[%s] = %d, want 1", id, n.matchIndex[id])
		}
	}
	if n.commitIndex != 1 {
		t.Fatalf("commitIndex = %d, want 1 (replicated to every peer)", n.commitIndex)
	}
}

func TestSendHeartbeatsStepsDownOnHigherTerm(t *testing.T) {
	n := newTestNode(t, "n1")
	clients := map[string]PeerClient{
		"n2": &fakePeerClient{voteGranted: true},
	}
	d := NewDriver(n, clients)
	d.runElection(context.Background())
	if n.State() != Leader {
		t.Fatal("setup: expected the node to win the election")
	}

	clients["n2"].(*fakePeerClient).appendResp = AppendEntriesResponse{Term: n.Term() + 10, Success: false}
	d.sendHeartbeats(context.Background())

	if n.State() != Follower {
		t.Fatal("a higher term in an AppendEntries response should step the leader down")
	}
}

func TestSendHeartbeatsMarksDisconnectedOnTransportError(t *testing.T) {
	n := newTestNode(t, "n1")
	clients := map[string]PeerClient{
		"n2": &fakePeerClient{voteGranted: true},
	}
	d := NewDriver(n, clients)
	d.runElection(context.Background())
	n.Handshake(HandshakeRequest{NodeID: "n2", Address: "n2:9000", ProtocolVersion: ProtocolVersion})

	clients["n2"].(*fakePeerClient).appendErr = errTransport
	d.sendHeartbeats(context.Background())

	peers := n.Peers()
	if len(peers) != 1 || peers[0].Connected {
		t.Fatalf("Peers = %+v, want n2 marked disconnected after a transport error", peers)
	}
}

func TestElectionTimedOutRespectsClock(t *testing.T) {
	n := newTestNode(t, "n1")
	if n.electionTimedOut(10 * time.Millisecond) {
		t.Fatal("a freshly created node should not report election timeout immediately")
	}
}
