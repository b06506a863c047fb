package birpc

import "encoding/json"

// unmarshalResult decodes resp.Result into out, wrapping decode failures
// as a RemoteValueError.
func unmarshalResult(resp *Response, out any) error {
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return &RemoteValueError{Err: err}
	}
	return nil
}

// UnmarshalResult is the exported form used by callers that hold a raw
// *Response (e.g. from Pending.CallID round trips) and want it decoded
// into a concrete Go type.
func UnmarshalResult(resp *Response, out any) error {
	return unmarshalResult(resp, out)
}
