package diagnostics

import "fmt"

// Code is a stable numeric diagnostic code. The three-digit families match
// the pipeline stage that raises them: 1xx lexical, 2xx semantic, 3xx
// compiler, 4xx runtime, 5xx system, 6xx module.
type Code uint32

const (
	// 1xx — lexical
	UnexpectedToken    Code = 101
	UnterminatedString Code = 102
	InvalidNumber      Code = 103
	InvalidEscape      Code = 104
	UnexpectedEof      Code = 105

	// 2xx — semantic
	UndefinedIdentifier Code = 200
	UndefinedVariable   Code = 201
	ArityMismatch       Code = 202
	TypeMismatch        Code = 203

	// 3xx — compiler
	TooManyConstants Code = 301
	TooManyRegisters Code = 302
	JumpTooFar       Code = 303

	// 4xx — runtime
	NotCallable      Code = 401
	NilCall          Code = 402
	DivisionByZero   Code = 403
	IndexOutOfBounds Code = 404
	NilAccess        Code = 405
	BadOperandType   Code = 406
	StackOverflow    Code = 408

	// 5xx — system
	IoError      Code = 501
	DeviceError  Code = 502
	NetworkError Code = 503

	// 6xx — module
	ModuleNotFound  Code = 601
	VersionConflict Code = 602
	CircularImport  Code = 603
	ModuleHasErrors Code = 604
)

// String renders the code the way it appears in diagnostic headers.
func (c Code) String() string {
	return fmt.Sprintf("AXM_%03d", uint32(c))
}

// Kind names the diagnostic family for the given code.
func (c Code) Kind() string {
	switch {
	case c < 200:
		return "Lex"
	case c < 300:
		return "Semantic"
	case c < 400:
		return "Compile"
	case c < 500:
		return "Runtime"
	case c < 600:
		return "System"
	default:
		return "Module"
	}
}

// CompileTime reports whether the code belongs to a pre-execution stage.
// Compile-time diagnostics exit with code 1, runtime ones with code 2.
func (c Code) CompileTime() bool {
	return c < 400
}

// Summary is the canonical one-line message used when the raiser does not
// supply a more specific one.
func (c Code) Summary() string {
	switch c {
	case UnexpectedToken:
		return "Unexpected token"
	case UnterminatedString:
		return "Unterminated string literal"
	case InvalidNumber:
		return "Invalid numeric literal"
	case InvalidEscape:
		return "Invalid escape sequence"
	case UnexpectedEof:
		return "Unexpected end of file"
	case UndefinedIdentifier:
		return "Undefined identifier"
	case UndefinedVariable:
		return "Undefined variable"
	case ArityMismatch:
		return "Wrong number of arguments"
	case TypeMismatch:
		return "Type mismatch"
	case TooManyConstants:
		return "Too many constants in one function"
	case TooManyRegisters:
		return "Too many live values in one function"
	case JumpTooFar:
		return "Jump distance exceeds encodable range"
	case NotCallable:
		return "Value is not callable"
	case NilCall:
		return "Attempt to call nil"
	case DivisionByZero:
		return "Division by zero"
	case IndexOutOfBounds:
		return "Index out of bounds"
	case NilAccess:
		return "Member access on nil"
	case BadOperandType:
		return "Unsupported operand type"
	case StackOverflow:
		return "Stack overflow"
	case IoError:
		return "I/O error"
	case DeviceError:
		return "Device error"
	case NetworkError:
		return "Network error"
	case ModuleNotFound:
		return "Module not found"
	case VersionConflict:
		return "Module version conflict"
	case CircularImport:
		return "Circular import"
	case ModuleHasErrors:
		return "Module contains errors"
	default:
		return "Error"
	}
}

// Hint is the generic help note for the code, shown when the raiser does
// not attach a more specific one. Empty string means no note.
func (c Code) Hint() string {
	switch c {
	case UnterminatedString:
		return "Add a closing '\"' before the end of the line"
	case InvalidNumber:
		return "A number may contain at most one decimal point"
	case UnexpectedEof:
		return "Check for an unclosed '{', '(' or '['"
	case ArityMismatch:
		return "Check the function's parameter list"
	case NilCall:
		return "The value resolved to nil; check the binding in the enclosing scope"
	case DivisionByZero:
		return "Check the divisor before dividing"
	case IndexOutOfBounds:
		return "Valid indices are 0 to len-1; negative indices count from the end"
	case StackOverflow:
		return "Deep non-tail recursion; consider a tail call or raise max_call_depth"
	default:
		return ""
	}
}
