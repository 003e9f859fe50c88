// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package progress

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"

	"github.com/disintegration/imageorient"
	"github.com/nfnt/resize"
)

const (
	thumbnailWidth   = 200
	thumbnailHeight  = 150
	thumbnailQuality = 70
)

// compressScreenshot decodes an arbitrarily-oriented source image,
// resamples it to the spec's fixed 200x150 thumbnail, and re-encodes
// as JPEG at quality 70 (spec.md §4.5 "Screenshot compression").
// imageorient.Decode applies any EXIF orientation tag before resize
// runs, so a portrait photo from a rotated viewport doesn't thumbnail
// sideways.
func compressScreenshot(r io.Reader) ([]byte, error) {
	img, _, err := imageorient.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("progress: decoding screenshot: %w", err)
	}

	thumb := resize.Resize(thumbnailWidth, thumbnailHeight, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("progress: encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
