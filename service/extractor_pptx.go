package service

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const maxPictureBytes = 20 << 20

var (
	reSlidePart     = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	errNoSlideParts = errors.New("presentation contains no slides")
)

var pictureExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".bmp":  {},
}

const presentationPart = "ppt/presentation.xml"

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// presentation lists slide relationship ids in show order.
type presentation struct {
	Slides []struct {
		RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

// parsePresentation reads slide text and the first picture of every slide
// from an Office Open XML presentation.
func parsePresentation(data []byte) ([]sourceUnit, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open presentation: %w", err)
	}

	files := make(map[string]*zip.File, len(archive.File))
	type slidePart struct {
		number int
		name   string
	}
	var parts []slidePart
	for _, f := range archive.File {
		files[f.Name] = f
		if m := reSlidePart.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			parts = append(parts, slidePart{number: n, name: f.Name})
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].number < parts[j].number })

	names := slideOrder(files)
	if len(names) == 0 {
		for _, part := range parts {
			names = append(names, part.name)
		}
	}
	if len(names) == 0 {
		return nil, errNoSlideParts
	}

	units := make([]sourceUnit, 0, len(names))
	for _, name := range names {
		raw, err := readZipFile(files[name], maxPictureBytes)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		text, err := slideText(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		units = append(units, sourceUnit{
			Text:    text,
			Picture: slidePicture(files, name),
		})
	}
	return units, nil
}

// slideOrder resolves the slide list of ppt/presentation.xml to part names.
// It returns nil when the deck has no usable slide list.
func slideOrder(files map[string]*zip.File) []string {
	presFile, ok := files[presentationPart]
	if !ok {
		return nil
	}
	rels, ok := readRelationships(files, presentationPart)
	if !ok {
		return nil
	}
	raw, err := readZipFile(presFile, maxPictureBytes)
	if err != nil {
		return nil
	}
	var pres presentation
	if err := xml.Unmarshal(raw, &pres); err != nil {
		return nil
	}

	targets := make(map[string]string, len(rels.Items))
	for _, rel := range rels.Items {
		targets[rel.ID] = partTarget(presentationPart, rel.Target)
	}

	var names []string
	for _, slide := range pres.Slides {
		name, ok := targets[slide.RelID]
		if !ok {
			continue
		}
		if _, ok := files[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// readRelationships parses the relationship part that belongs to partName.
func readRelationships(files map[string]*zip.File, partName string) (relationships, bool) {
	var rels relationships
	relsName := path.Join(path.Dir(partName), "_rels", path.Base(partName)+".rels")
	relsFile, ok := files[relsName]
	if !ok {
		return rels, false
	}
	raw, err := readZipFile(relsFile, maxPictureBytes)
	if err != nil {
		return rels, false
	}
	if err := xml.Unmarshal(raw, &rels); err != nil {
		return rels, false
	}
	return rels, true
}

// partTarget resolves a relationship target against the part that owns it.
func partTarget(partName, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return path.Clean(path.Join(path.Dir(partName), target))
}

// slideText collects the a:t runs of a slide, one line per a:p paragraph.
func slideText(raw []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(raw))

	var (
		lines   []string
		current strings.Builder
		inText  bool
	)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if line := strings.TrimSpace(current.String()); line != "" {
					lines = append(lines, line)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if line := strings.TrimSpace(current.String()); line != "" {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// slidePicture returns the first embedded raster image of a slide, if any.
func slidePicture(files map[string]*zip.File, slideName string) []byte {
	rels, ok := readRelationships(files, slideName)
	if !ok {
		return nil
	}
	for _, rel := range rels.Items {
		if !strings.HasSuffix(rel.Type, "/image") {
			continue
		}
		target := partTarget(slideName, rel.Target)
		if _, ok := pictureExtensions[strings.ToLower(path.Ext(target))]; !ok {
			continue
		}
		f, ok := files[target]
		if !ok {
			continue
		}
		picture, err := readZipFile(f, maxPictureBytes)
		if err != nil {
			continue
		}
		return picture
	}
	return nil
}

func readZipFile(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}
