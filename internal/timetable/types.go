package timetable

// XML shapes of the timetable API. Both the planned snapshot and the full
// change document share the same element structure; they differ only in
// which attributes are populated (pt/ppth vs ct/clt).

type timetableDoc struct {
	Station string     `xml:"station,attr"`
	Stops   []stopElem `xml:"s"`
}

type stopElem struct {
	ID        string     `xml:"id,attr"`
	TripLabel *tripLabel `xml:"tl"`
	Arrival   *eventElem `xml:"ar"`
	Departure *eventElem `xml:"dp"`
}

type tripLabel struct {
	Category string `xml:"c,attr"`
	Number   string `xml:"n,attr"`
}

type eventElem struct {
	PlannedTime      string `xml:"pt,attr"`
	ChangedTime      string `xml:"ct,attr"`
	CancellationTime string `xml:"clt,attr"`
	Line             string `xml:"l,attr"`
	PlannedPath      string `xml:"ppth,attr"`
}
