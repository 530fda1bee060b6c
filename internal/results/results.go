package results

import "encoding/json"

// Results pairs a decoded response with the groups and count types of the
// query that produced it.
type Results struct {
	response   *Node
	raw        json.RawMessage
	groups     []string
	countTypes []string
	dtypes     map[string]string
}

// New wraps a decoded response. dtypes may be nil.
func New(resp *Node, groups, countTypes []string, dtypes map[string]string) *Results {
	return &Results{
		response:   resp,
		groups:     append([]string{}, groups...),
		countTypes: append([]string{}, countTypes...),
		dtypes:     dtypes,
	}
}

// Decode parses a raw service response.
func Decode(raw []byte, groups, countTypes []string, dtypes map[string]string) (*Results, error) {
	var n Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	r := New(&n, groups, countTypes, dtypes)
	r.raw = append(json.RawMessage{}, raw...)
	return r, nil
}

// Groups returns the group fields, outermost first.
func (r *Results) Groups() []string {
	return append([]string{}, r.groups...)
}

// CountTypes returns the count types in leaf order.
func (r *Results) CountTypes() []string {
	return append([]string{}, r.countTypes...)
}

// Response returns the decoded nested response.
func (r *Results) Response() *Node {
	return r.response
}

// JSON returns the response as received, or re-encoded when it was built
// in memory.
func (r *Results) JSON() (json.RawMessage, error) {
	if r.raw != nil {
		return r.raw, nil
	}
	return json.Marshal(r.response)
}

// Rows expands the response into one row per leaf.
func (r *Results) Rows() ([]Row, error) {
	return Expand(r.response, r.groups, r.countTypes)
}

// Frame expands the response and builds a sorted table.
func (r *Results) Frame(opts FrameOptions) (*Frame, error) {
	rows, err := r.Rows()
	if err != nil {
		return nil, err
	}
	if opts.DTypes == nil {
		opts.DTypes = r.dtypes
	}
	return NewFrame(rows, r.groups, r.countTypes, opts), nil
}
