package intake

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
)

// extractTextFromMessage pulls the text content out of an email message.
// Multipart messages yield the concatenation of their text/plain parts;
// everything else is returned as-is.
func extractTextFromMessage(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		bodyBytes, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", err
		}
		return string(bodyBytes), nil
	}

	boundary, ok := params["boundary"]
	if !ok {
		bodyBytes, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", err
		}
		return string(bodyBytes), nil
	}

	var textContent bytes.Buffer
	mr := multipart.NewReader(msg.Body, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed part boundary; keep whatever text we already have.
			break
		}

		partType := strings.ToLower(part.Header.Get("Content-Type"))
		if strings.Contains(partType, "text/plain") {
			partBytes, err := io.ReadAll(part)
			if err != nil {
				continue
			}
			textContent.Write(partBytes)
			textContent.WriteString("\n")
		}
		// Attachments and nested multiparts are skipped.
	}

	if textContent.Len() == 0 {
		return "[No text content found in multipart message]", nil
	}
	return textContent.String(), nil
}

// decodeEncodedHeader decodes RFC 2047 encoded words in a header value.
func decodeEncodedHeader(value string) (string, error) {
	if !strings.Contains(value, "=?") {
		return value, nil
	}
	dec := &mime.WordDecoder{}
	decoded, err := dec.DecodeHeader(value)
	if err != nil {
		return value, err
	}
	return decoded, nil
}

// hasAttachments reports whether the message looks like it carries
// non-inline parts, judged from the top-level content type.
func hasAttachments(msg *mail.Message) bool {
	mediaType, _, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "multipart/mixed"
}
