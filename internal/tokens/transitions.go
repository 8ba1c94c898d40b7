package tokens

var transitions = map[Status][]Status{
	StatusOpen:    {StatusBlocked, StatusClosed},
	StatusBlocked: {StatusOpen, StatusBooked, StatusClosed},
	StatusBooked:  {StatusVisited, StatusCancelled, StatusOpen},
}

// CanTransition reports whether a token may move from one status to another.
// VISITED, CANCELLED and CLOSED are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
