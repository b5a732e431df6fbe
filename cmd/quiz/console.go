package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/skip2/go-qrcode"

	"quizmesh/internal/app"
	"quizmesh/internal/domain"
)

var errQuit = errors.New("quit")

// quizSession is the part of *app.Session the console drives
type quizSession interface {
	Code() domain.SessionCode
	PlayerID() string
	IsHost() bool
	Token() string
	State() domain.Snapshot
	Subscribe() (<-chan app.Update, func())
	AskQuestion(text, answer string) error
	JudgeAnswer(playerID string, correct bool) error
	StartGame() error
	SendBuzz() error
}

// console is the line-oriented front end over a session. Only the run loop
// writes to out.
type console struct {
	session quizSession
	in      io.Reader
	out     io.Writer
}

func newConsole(s quizSession, in io.Reader, out io.Writer) *console {
	return &console{session: s, in: in, out: out}
}

func (c *console) run(ctx context.Context) error {
	c.banner()

	updates, cancel := c.session.Subscribe()
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			c.printUpdate(u)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.exec(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

func (c *console) banner() {
	s := c.session
	if s.IsHost() {
		fmt.Fprintf(c.out, "Hosting session %s\n", s.Code())
		if q, err := qrcode.New(s.Code().String(), qrcode.Medium); err == nil {
			fmt.Fprint(c.out, q.ToSmallString(false))
		}
		fmt.Fprintln(c.out, "Commands: ask <question> | <answer>, judge <player> y|n, start, state, token, quit")
	} else {
		fmt.Fprintf(c.out, "Joined session %s as %s\n", s.Code(), s.PlayerID())
		fmt.Fprintln(c.out, "Commands: buzz, state, token, quit")
	}
	fmt.Fprintf(c.out, "Resume token: %s\n", s.Token())
}

func (c *console) exec(line string) error {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "":
		return nil
	case "ask":
		question, answer, ok := strings.Cut(rest, "|")
		if !ok {
			return errors.New("usage: ask <question> | <answer>")
		}
		return c.session.AskQuestion(question, answer)
	case "judge":
		return c.judge(rest)
	case "start":
		return c.session.StartGame()
	case "buzz":
		return c.session.SendBuzz()
	case "state":
		c.printState(c.session.State())
		return nil
	case "token":
		fmt.Fprintln(c.out, c.session.Token())
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// judge accepts a player id, id prefix or name followed by y or n
func (c *console) judge(args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return errors.New("usage: judge <player> y|n")
	}

	var correct bool
	switch strings.ToLower(fields[1]) {
	case "y", "yes":
		correct = true
	case "n", "no":
	default:
		return errors.New("usage: judge <player> y|n")
	}

	playerID, err := resolvePlayer(c.session.State(), fields[0])
	if err != nil {
		return err
	}
	return c.session.JudgeAnswer(playerID, correct)
}

func resolvePlayer(snap domain.Snapshot, ref string) (string, error) {
	var matches []string
	for _, p := range snap.Players {
		if p.IsHost {
			continue
		}
		if p.ID == ref || strings.EqualFold(p.Name, ref) {
			return p.ID, nil
		}
		if strings.HasPrefix(p.ID, ref) {
			matches = append(matches, p.ID)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("%q matches %d players", ref, len(matches))
	}
	return "", fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, ref)
}

func (c *console) printUpdate(u app.Update) {
	switch u.Event.Type {
	case domain.EventQuestionAsked:
		if q := u.Snapshot.CurrentQuestion; q != nil {
			fmt.Fprintf(c.out, "Question: %s\n", q.Text)
		}
	case domain.EventBuzzRecorded:
		if p, ok := u.Snapshot.Player(u.Snapshot.CurrentAnswerer); ok {
			fmt.Fprintf(c.out, "Buzz! %s is answering\n", p.Name)
		}
	case domain.EventAnswerJudged, domain.EventGameStarted, domain.EventPlayerJoined,
		domain.EventPlayerReconnected, domain.EventPlayerDisconnected:
		fmt.Fprintf(c.out, "[%s]\n", u.Event.Type)
		c.printState(u.Snapshot)
	case domain.EventLinkLost:
		fmt.Fprintln(c.out, "Lost connection to the host")
	}
}

func (c *console) printState(snap domain.Snapshot) {
	if snap.CurrentQuestion != nil {
		fmt.Fprintf(c.out, "  question: %s\n", snap.CurrentQuestion.Text)
	}
	for _, p := range snap.Players {
		marker := " "
		if p.ID == snap.CurrentAnswerer {
			marker = "*"
		}
		role := ""
		if p.IsHost {
			role = " (host)"
		}
		fmt.Fprintf(c.out, " %s %-16s %3d  %s %s%s\n", marker, p.Name, p.Score, p.ID[:min(8, len(p.ID))], p.Status, role)
	}
}
