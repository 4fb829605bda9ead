package sql

// Bool is the result of a SQL predicate. A comparison involving NULL is Unknown, which is neither true nor false.
type Bool int8

const (
	Unknown Bool = -1
	False   Bool = 0
	True    Bool = 1
)

// BoolOf converts a Go bool.
func BoolOf(b bool) Bool {
	if b {
		return True
	}
	return False
}

// And is SQL conjunction: False dominates, then Unknown.
func (b Bool) And(other Bool) Bool {
	if b == False || other == False {
		return False
	}
	if b == True && other == True {
		return True
	}
	return Unknown
}

// Or is SQL disjunction: True dominates, then Unknown.
func (b Bool) Or(other Bool) Bool {
	if b == True || other == True {
		return True
	}
	if b == False && other == False {
		return False
	}
	return Unknown
}

// Not negates b. The negation of Unknown is Unknown.
func (b Bool) Not() Bool {
	switch b {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

func (b Bool) String() string {
	switch b {
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	}
	return "UNKNOWN"
}
