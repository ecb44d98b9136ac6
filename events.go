package main

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// eventLog is the displayed tail of the central director's event log. Each
// successful fetch replaces the page wholesale; nothing accumulates.
type eventLog struct {
	page EventPage
}

func (l *eventLog) replace(p EventPage) {
	events := make([]EventRecord, len(p.Events))
	copy(events, p.Events)
	l.page = EventPage{Events: events, Pagination: p.Pagination}
}

func (l *eventLog) current() EventPage {
	events := make([]EventRecord, len(l.page.Events))
	copy(events, l.page.Events)
	return EventPage{Events: events, Pagination: l.page.Pagination}
}

func eventsQuery(page, limit int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return eventsPath + "?" + q.Encode()
}

// eventFeed polls one page of the event log and hands it to the dashboard.
func eventFeed(f *Fetcher, d *Dashboard, interval time.Duration, page, limit int) Feed {
	path := eventsQuery(page, limit)
	return NewFeed("events", interval,
		func(ctx context.Context) Result[EventPage] {
			return FetchJSON[EventPage](ctx, f, "events", path)
		},
		d.ApplyEvents,
	)
}
