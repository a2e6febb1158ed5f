package handler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/romanzh1/english-tutor/internal/parser"
	"github.com/romanzh1/english-tutor/internal/repository"
	"github.com/romanzh1/english-tutor/internal/service"
	"go.uber.org/zap"
)

type Options struct {
	ErrorDays   int
	ErrorLimit  int
	PatternDays int
	ExportDir   string
}

// ConsoleHandler runs the interactive tutoring loop over a line-based terminal.
type ConsoleHandler struct {
	in      *bufio.Scanner
	out     io.Writer
	service models.Service
	opts    Options
}

func NewConsoleHandler(in io.Reader, out io.Writer, service models.Service, opts Options) *ConsoleHandler {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &ConsoleHandler{
		in:      scanner,
		out:     out,
		service: service,
		opts:    opts,
	}
}

// Start reads user input until quit or end of input.
func (h *ConsoleHandler) Start(ctx context.Context, session *models.Session) error {
	h.printWelcome(session)

	for {
		fmt.Fprint(h.out, "\nYou: ")
		if !h.in.Scan() {
			fmt.Fprintln(h.out, "\nGoodbye! Keep practicing!")
			return h.in.Err()
		}

		if quit := h.handleLine(ctx, session, h.in.Text()); quit {
			fmt.Fprintln(h.out, "Goodbye! Keep practicing!")
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (h *ConsoleHandler) handleLine(ctx context.Context, session *models.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		fmt.Fprintln(h.out, "Please enter a message.")
		return false
	}

	userID := session.User.UserID

	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		if len(fields) == 1 {
			return true
		}
	case "stats":
		if len(fields) == 1 {
			h.report(h.ShowStatistics(ctx, userID))
			return false
		}
	case "errors":
		if days, limit, ok := h.errorArgs(fields[1:]); ok {
			h.report(h.ShowErrors(ctx, userID, days, limit))
			return false
		}
	case "patterns":
		if days, ok := intArg(fields[1:], 0, h.opts.PatternDays); ok && len(fields) <= 2 {
			h.report(h.ShowPatterns(ctx, userID, days))
			return false
		}
	case "export":
		if len(fields) == 1 {
			h.report(h.Export(ctx, userID, session.User.Username))
			return false
		}
	case "help":
		if len(fields) == 1 {
			h.printHelp()
			return false
		}
	case "clear":
		if len(fields) == 1 {
			h.service.ResetHistory(session)
			fmt.Fprintln(h.out, "Conversation history cleared.")
			return false
		}
	}

	h.handleMessage(ctx, session, line)
	return false
}

func (h *ConsoleHandler) errorArgs(args []string) (int, int, bool) {
	if len(args) > 2 {
		return 0, 0, false
	}
	days, ok := intArg(args, 0, h.opts.ErrorDays)
	if !ok {
		return 0, 0, false
	}
	limit, ok := intArg(args, 1, h.opts.ErrorLimit)
	if !ok {
		return 0, 0, false
	}
	return days, limit, true
}

// intArg returns args[i] as a non-negative int, or def when it is absent.
func intArg(args []string, i, def int) (int, bool) {
	if i >= len(args) {
		return def, true
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (h *ConsoleHandler) handleMessage(ctx context.Context, session *models.Session, text string) {
	fmt.Fprint(h.out, "\nTutor: ")

	stream := &conversationWriter{out: h.out}
	result, err := h.service.ProcessTurn(ctx, session, text, stream.Write)
	if err != nil {
		if errors.Is(err, service.ErrEmptyMessage) {
			fmt.Fprintln(h.out, "Please enter a message.")
			return
		}

		zap.S().Errorw("process turn", zap.Error(err), zap.Int64("conversation_id", session.ConversationID))
		if repository.IsUnavailable(err) {
			fmt.Fprintln(h.out, "\nThe database is busy or unavailable. Please try again.")
			return
		}
		fmt.Fprintf(h.out, "\nSorry, something went wrong: %v\n", err)
		return
	}

	if !stream.wrote {
		fmt.Fprint(h.out, result.Parsed.Conversation)
	} else {
		stream.Flush()
	}
	fmt.Fprintln(h.out)

	if result.Parsed.LearningNotes != "" {
		fmt.Fprintln(h.out, "\nQuick tip:")
		for _, line := range strings.Split(result.Parsed.LearningNotes, "\n") {
			if strings.TrimSpace(line) != "" {
				fmt.Fprintf(h.out, "   %s\n", strings.TrimSpace(line))
			}
		}
	}

	fmt.Fprintf(h.out, "\nResponse time: %dms\n", result.ResponseTime.Milliseconds())
}

// conversationWriter echoes streamed text line by line and goes quiet once the
// learning notes delimiter shows up.
type conversationWriter struct {
	out     io.Writer
	pending strings.Builder
	stopped bool
	wrote   bool
}

func (w *conversationWriter) Write(token string) {
	if w.stopped {
		return
	}

	w.pending.WriteString(token)
	buf := w.pending.String()

	for {
		i := strings.IndexByte(buf, '\n')
		if i < 0 {
			break
		}

		line := buf[:i]
		buf = buf[i+1:]
		if parser.IsDelimiter(line) {
			w.stopped = true
			w.pending.Reset()
			return
		}

		if w.wrote || strings.TrimSpace(line) != "" {
			fmt.Fprintln(w.out, strings.TrimRight(line, "\r"))
			w.wrote = true
		}
	}

	w.pending.Reset()
	w.pending.WriteString(buf)
}

// Flush writes a trailing partial line unless it turns out to be the delimiter.
func (w *conversationWriter) Flush() {
	if w.stopped {
		return
	}

	rest := w.pending.String()
	w.pending.Reset()
	if rest != "" && !parser.IsDelimiter(rest) {
		fmt.Fprint(w.out, strings.TrimRight(rest, " \t\r\n"))
	}
}

func (h *ConsoleHandler) report(err error) {
	if err == nil {
		return
	}
	zap.S().Errorw("console report", zap.Error(err))
	fmt.Fprintf(h.out, "Error: %v\n", err)
}

func (h *ConsoleHandler) ShowStatistics(ctx context.Context, userID int64) error {
	stats, err := h.service.GetStatistics(ctx, userID)
	if err != nil {
		return fmt.Errorf("get statistics (user_id: %d): %w", userID, err)
	}

	fmt.Fprintf(h.out, "\nLearning Statistics for %s\n", stats.UserInfo.Username)
	fmt.Fprintf(h.out, "  Level:               %s\n", stats.UserInfo.PreferredLevel)
	fmt.Fprintf(h.out, "  Joined:              %s\n", stats.UserInfo.JoinDate.Local().Format("2006-01-02"))
	fmt.Fprintf(h.out, "  Conversations:       %d\n", stats.Conversations.Total)
	fmt.Fprintf(h.out, "  Avg messages/conv:   %.2f\n", stats.Conversations.AvgMessages)
	fmt.Fprintf(h.out, "  Levels practiced:    %d\n", stats.Conversations.LevelsPracticed)
	fmt.Fprintf(h.out, "  Messages written:    %d\n", stats.Vocabulary.TotalMessages)
	fmt.Fprintf(h.out, "  Words written:       %d\n", stats.Vocabulary.TotalWords)

	if len(stats.Errors) > 0 {
		fmt.Fprintln(h.out, "\nErrors by type:")
		for _, e := range stats.Errors {
			fmt.Fprintf(h.out, "  %-15s %4d  (avg confidence %.2f)\n", e.ErrorType, e.Count, e.AvgConfidence)
		}
	}

	if len(stats.RecentProgress) > 0 {
		fmt.Fprintln(h.out, "\nRecent progress:")
		for _, p := range stats.RecentProgress {
			fmt.Fprintf(h.out, "  %s  messages %3d  errors %3d  avg score %5.1f  %s\n",
				p.Date, p.MessagesSent, p.TotalErrors, p.AvgScore, p.CEFRProgress)
		}
	}

	return nil
}

func (h *ConsoleHandler) ShowErrors(ctx context.Context, userID int64, days, limit int) error {
	history, err := h.service.GetErrorHistory(ctx, userID, limit, days)
	if err != nil {
		return fmt.Errorf("get error history (user_id: %d): %w", userID, err)
	}

	if len(history) == 0 {
		fmt.Fprintln(h.out, "No errors found in the specified period!")
		return nil
	}

	period := "all time"
	if days > 0 {
		period = fmt.Sprintf("last %d days", days)
	}

	fmt.Fprintf(h.out, "\nError History (%s): %d errors\n", period, len(history))
	for i, e := range history {
		fmt.Fprintf(h.out, "\n#%d  %s\n", i+1, truncate(e.UserMessage, 80))
		fmt.Fprintf(h.out, "  Error:       %s\n", e.OriginalText)
		fmt.Fprintf(h.out, "  Correction:  %s\n", e.Correction)
		fmt.Fprintf(h.out, "  Explanation: %s\n", e.Explanation)
		fmt.Fprintf(h.out, "  Type: %s | Severity: %s | Time: %s | Confidence: %.1f\n",
			e.ErrorType, e.Severity, e.Timestamp.Local().Format("2006-01-02 15:04"), e.Confidence)
	}

	return nil
}

func (h *ConsoleHandler) ShowPatterns(ctx context.Context, userID int64, days int) error {
	patterns, err := h.service.GetErrorPatterns(ctx, userID, days)
	if err != nil {
		return fmt.Errorf("get error patterns (user_id: %d): %w", userID, err)
	}

	fmt.Fprintf(h.out, "\nError Pattern Analysis (last %d days):\n", patterns.AnalysisPeriodDays)
	if patterns.Empty() {
		fmt.Fprintln(h.out, "  No errors recorded in this period.")
		return nil
	}

	if len(patterns.Distribution) > 0 {
		fmt.Fprintln(h.out, "\nError type distribution:")
		for _, c := range patterns.Distribution {
			fmt.Fprintf(h.out, "  %-15s %-20s %3d errors\n", c.ErrorType, bar("█", c.Count/2, 20), c.Count)
		}
	}

	if len(patterns.FrequentErrors) > 0 {
		fmt.Fprintln(h.out, "\nMost frequent errors:")
		for i, e := range patterns.FrequentErrors {
			fmt.Fprintf(h.out, "  %d. %q → %q (%d times)\n", i+1, e.OriginalText, e.Correction, e.Frequency)
		}
	}

	if len(patterns.Trend) > 0 {
		fmt.Fprintln(h.out, "\nDaily error trend:")
		for i, d := range patterns.Trend {
			if i == 7 {
				break
			}
			fmt.Fprintf(h.out, "  %s: %-15s %d\n", d.Date, bar("▓", d.Count, 15), d.Count)
		}
	}

	return nil
}

func (h *ConsoleHandler) Export(ctx context.Context, userID int64, username string) error {
	path, err := h.service.WriteExport(ctx, userID, username, h.opts.ExportDir)
	if err != nil {
		return fmt.Errorf("write export (user_id: %d): %w", userID, err)
	}

	fmt.Fprintf(h.out, "Data exported to: %s\n", path)
	return nil
}

func (h *ConsoleHandler) printWelcome(session *models.Session) {
	topic := session.Topic
	if topic == "" {
		topic = "General conversation"
	}

	fmt.Fprintln(h.out, "English Tutor Started")
	fmt.Fprintf(h.out, "  User:  %s\n", session.User.Username)
	fmt.Fprintf(h.out, "  Level: %s\n", session.Level)
	fmt.Fprintf(h.out, "  Topic: %s\n", topic)
	fmt.Fprintln(h.out, "Commands: quit, stats, errors, patterns, export, clear, help")
}

func (h *ConsoleHandler) printHelp() {
	fmt.Fprintln(h.out, `Commands:
  quit | exit | q          leave the tutor
  stats                    show your learning statistics
  errors [days] [limit]    show recent errors
  patterns [days]          analyse your error patterns
  export                   export your data to JSON
  clear                    forget the conversation so far
  help                     show this help
Anything else is sent to the tutor.`)
}

func bar(glyph string, n, max int) string {
	if n > max {
		n = max
	}
	if n < 0 {
		n = 0
	}
	return strings.Repeat(glyph, n)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
