package lw3

import "strings"

// ParserState is the state of the block parser.
type ParserState int

const (
	StateReady ParserState = iota
	StateInBlock
)

func (s ParserState) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateInBlock:
		return "IN_BLOCK"
	default:
		return "UNKNOWN"
	}
}

// MessageKind tells a single pushed line from a framed block.
type MessageKind int

const (
	MessageLine MessageKind = iota
	MessageBlock
)

// Message is one logical protocol message.
type Message struct {
	Kind MessageKind
	// ID is the transaction id of a block, empty for single lines.
	ID string
	// Body holds the line itself, or the block content joined with CRLF and trimmed.
	Body string
	// Errors holds the error tagged block lines, joined and trimmed.
	Errors string
}

// Lines splits the body back into its lines.
func (m Message) Lines() []string {
	if m.Body == "" {
		return nil
	}
	return strings.Split(m.Body, Delimiter)
}

// BlockParser turns framed lines into messages:
//
//	READY    + "{id"   -> IN_BLOCK
//	READY    + other   -> emit line
//	IN_BLOCK + "}"     -> emit block, READY
//	IN_BLOCK + "xE..." -> error accumulator
//	IN_BLOCK + other   -> body accumulator
type BlockParser struct {
	state  ParserState
	id     string
	body   strings.Builder
	errors strings.Builder
}

func NewBlockParser() *BlockParser {
	return &BlockParser{}
}

func (p *BlockParser) State() ParserState {
	return p.state
}

// Feed consumes one line. It returns a message and true when one is complete.
func (p *BlockParser) Feed(line string) (Message, bool) {
	switch p.state {
	case StateReady:
		if strings.HasPrefix(line, "{") {
			p.id = line[1:]
			p.body.Reset()
			p.errors.Reset()
			p.state = StateInBlock
			return Message{}, false
		}
		return Message{Kind: MessageLine, Body: line}, true

	case StateInBlock:
		if line == "}" {
			msg := Message{
				Kind:   MessageBlock,
				ID:     p.id,
				Body:   strings.TrimSpace(p.body.String()),
				Errors: strings.TrimSpace(p.errors.String()),
			}
			p.Reset()
			return msg, true
		}
		if isErrorLine(line) {
			p.errors.WriteString(line)
			p.errors.WriteString(Delimiter)
		} else {
			p.body.WriteString(line)
			p.body.WriteString(Delimiter)
		}
	}
	return Message{}, false
}

// Reset drops a half-read block and returns to READY.
func (p *BlockParser) Reset() {
	p.state = StateReady
	p.id = ""
	p.body.Reset()
	p.errors.Reset()
}

// isErrorLine matches "pE", "nE", "mE" style error replies.
func isErrorLine(line string) bool {
	return len(line) >= 2 && line[1] == 'E'
}
