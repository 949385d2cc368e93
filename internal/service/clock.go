package service

import "time"

// Clock is the time source for issue stamps and scheduling windows.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
