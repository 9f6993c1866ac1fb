package lw3

import (
	"fmt"
	"strings"
)

// Verb is an LW3 request method.
type Verb string

const (
	VerbGet  Verb = "GET"
	VerbSet  Verb = "SET"
	VerbCall Verb = "CALL"
	VerbOpen Verb = "OPEN"
)

// Command is a request without its transaction id.
//
//	GET  /MEDIA/VIDEO/XP.DestinationConnectionList
//	SET  /MEDIA/USB/USBSWITCH.HostSelect=2
//	CALL /MEDIA/VIDEO/XP:switch(I1:O2)
//	OPEN /MEDIA/VIDEO/XP
type Command struct {
	Verb Verb
	Path string
	// Args is appended verbatim after the path ("=value" or ":method(args)").
	Args string
}

func (c Command) String() string {
	return string(c.Verb) + " " + c.Path + c.Args
}

func Get(path string) Command {
	return Command{Verb: VerbGet, Path: path}
}

func Open(path string) Command {
	return Command{Verb: VerbOpen, Path: path}
}

// Set writes property on the node at path.
func Set(path, property, value string) Command {
	return Command{Verb: VerbSet, Path: path + "." + property, Args: "=" + value}
}

// Call invokes method on the node at path.
func Call(path, method string, args ...string) Command {
	return Command{
		Verb: VerbCall,
		Path: path,
		Args: ":" + method + "(" + strings.Join(args, ";") + ")",
	}
}

// EncodeRequest builds the wire form "<id>#<command>\r\n".
func EncodeRequest(id, command string) []byte {
	return []byte(id + "#" + command + Delimiter)
}

// ParseVerb validates the verb at the start of a raw command string.
func ParseVerb(command string) (Verb, error) {
	word, _, _ := strings.Cut(strings.TrimSpace(command), " ")
	switch v := Verb(strings.ToUpper(word)); v {
	case VerbGet, VerbSet, VerbCall, VerbOpen:
		return v, nil
	default:
		return "", fmt.Errorf("unsupported verb %q", word)
	}
}
