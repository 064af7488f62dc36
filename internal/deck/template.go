package deck

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default slide dimensions for new decks: 10 x 7.5 inches in EMU (4:3).
const (
	DefaultSlideWidthEMU  = 9144000
	DefaultSlideHeightEMU = 6858000
)

const xmlDecl = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

const nsDecls = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`

// CreateDeck writes a minimal valid package at path with the given number
// of blank slides. Slide 1 uses the "Title Slide" layout, the rest "Title
// and Content". The same template backs the create operation and the test
// fixtures.
func CreateDeck(path string, slides int, widthEMU, heightEMU int64) error {
	if slides < 1 {
		slides = 1
	}
	if widthEMU <= 0 {
		widthEMU = DefaultSlideWidthEMU
	}
	if heightEMU <= 0 {
		heightEMU = DefaultSlideHeightEMU
	}

	parts := [][2]string{
		{"[Content_Types].xml", contentTypesXML(slides)},
		{"_rels/.rels", rootRelsXML},
		{presPart, presentationXML(slides, widthEMU, heightEMU)},
		{presRelsPart, presRelsXML(slides)},
		{"ppt/slideMasters/slideMaster1.xml", slideMasterXML},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", masterRelsXML},
		{"ppt/slideLayouts/slideLayout1.xml", layoutTitleXML},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", layoutRelsXML},
		{"ppt/slideLayouts/slideLayout2.xml", layoutContentXML},
		{"ppt/slideLayouts/_rels/slideLayout2.xml.rels", layoutRelsXML},
		{"ppt/theme/theme1.xml", themeXML},
	}
	for i := 1; i <= slides; i++ {
		layout := "slideLayout2.xml"
		if i == 1 {
			layout = "slideLayout1.xml"
		}
		parts = append(parts,
			[2]string{fmt.Sprintf("ppt/slides/slide%d.xml", i), blankSlideXML},
			[2]string{fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i), slideRelsXML(layout)},
		)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dagaz-tmp-*")
	if err != nil {
		return fmt.Errorf("deck: create temp: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, part := range parts {
		fw, err := zw.Create(part[0])
		if err != nil {
			return fmt.Errorf("deck: create zip entry %s: %w", part[0], err)
		}
		if _, err := fw.Write([]byte(part[1])); err != nil {
			return fmt.Errorf("deck: write zip entry %s: %w", part[0], err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("deck: finalize zip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("deck: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("deck: rename: %w", err)
	}
	success = true
	return nil
}

func contentTypesXML(slides int) string {
	var sb strings.Builder
	sb.WriteString(xmlDecl)
	sb.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	sb.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	sb.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/slideLayouts/slideLayout2.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)
	for i := 1; i <= slides; i++ {
		fmt.Fprintf(&sb, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="%s"/>`, i, ctSlide)
	}
	sb.WriteString(`</Types>`)
	return sb.String()
}

const rootRelsXML = xmlDecl + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="ppt/presentation.xml"/></Relationships>`

func presentationXML(slides int, widthEMU, heightEMU int64) string {
	var sb strings.Builder
	sb.WriteString(xmlDecl)
	sb.WriteString(`<p:presentation ` + nsDecls + `>`)
	sb.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	sb.WriteString(`<p:sldIdLst>`)
	for i := 1; i <= slides; i++ {
		fmt.Fprintf(&sb, `<p:sldId id="%d" r:id="rId%d"/>`, 255+i, 1+i)
	}
	sb.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&sb, `<p:sldSz cx="%d" cy="%d"/>`, widthEMU, heightEMU)
	sb.WriteString(`<p:notesSz cx="6858000" cy="9144000"/>`)
	sb.WriteString(`</p:presentation>`)
	return sb.String()
}

func presRelsXML(slides int) string {
	var sb strings.Builder
	sb.WriteString(xmlDecl)
	sb.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	sb.WriteString(`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="slideMasters/slideMaster1.xml"/>`)
	for i := 1; i <= slides; i++ {
		fmt.Fprintf(&sb, `<Relationship Id="rId%d" Type="%s" Target="slides/slide%d.xml"/>`, 1+i, relTypeSlide, i)
	}
	sb.WriteString(`</Relationships>`)
	return sb.String()
}

// placeholderSp renders a placeholder shape for masters and layouts.
// xfrm may be empty to inherit geometry from the master.
func placeholderSp(id int, name, phType, phIdx, xfrm string) string {
	idxAttr := ""
	if phIdx != "" {
		idxAttr = fmt.Sprintf(` idx="%s"`, phIdx)
	}
	typeAttr := ""
	if phType != "" {
		typeAttr = fmt.Sprintf(` type="%s"`, phType)
	}
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph%s%s/></p:nvPr></p:nvSpPr><p:spPr>%s</p:spPr><p:txBody><a:bodyPr/><a:lstStyle/><a:p><a:endParaRPr lang="en-US"/></a:p></p:txBody></p:sp>`,
		id, name, typeAttr, idxAttr, xfrm)
}

func xfrmXML(x, y, cx, cy int64) string {
	return fmt.Sprintf(`<a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`, x, y, cx, cy)
}

const spTreeHeader = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

var slideMasterXML = xmlDecl + `<p:sldMaster ` + nsDecls + `><p:cSld><p:spTree>` +
	spTreeHeader +
	placeholderSp(2, "Title Placeholder 1", "title", "", xfrmXML(457200, 274638, 8229600, 1143000)) +
	placeholderSp(3, "Text Placeholder 2", "body", "1", xfrmXML(457200, 1600200, 8229600, 4525963)) +
	`</p:spTree></p:cSld><p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/><p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/><p:sldLayoutId id="2147483650" r:id="rId2"/></p:sldLayoutIdLst></p:sldMaster>`

const masterRelsXML = xmlDecl + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout" Target="../slideLayouts/slideLayout1.xml"/><Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout" Target="../slideLayouts/slideLayout2.xml"/><Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/theme" Target="../theme/theme1.xml"/></Relationships>`

// Layout 1 overrides the title geometry; its subtitle carries its own.
var layoutTitleXML = xmlDecl + `<p:sldLayout ` + nsDecls + ` type="title"><p:cSld name="Title Slide"><p:spTree>` +
	spTreeHeader +
	placeholderSp(2, "Title 1", "ctrTitle", "", xfrmXML(685800, 2130425, 7772400, 1470025)) +
	placeholderSp(3, "Subtitle 2", "subTitle", "1", xfrmXML(1371600, 3886200, 6400800, 1752600)) +
	`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`

// Layout 2 leaves the title without an xfrm so geometry resolves through
// the master inheritance chain.
var layoutContentXML = xmlDecl + `<p:sldLayout ` + nsDecls + ` type="obj"><p:cSld name="Title and Content"><p:spTree>` +
	spTreeHeader +
	placeholderSp(2, "Title 1", "title", "", "") +
	placeholderSp(3, "Content Placeholder 2", "body", "1", xfrmXML(457200, 1600200, 8229600, 4525963)) +
	`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`

const layoutRelsXML = xmlDecl + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="../slideMasters/slideMaster1.xml"/></Relationships>`

const blankSlideXML = xmlDecl + `<p:sld ` + nsDecls + `><p:cSld><p:spTree>` + spTreeHeader + `</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`

func slideRelsXML(layout string) string {
	return xmlDecl + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="` + relTypeLayout + `" Target="../slideLayouts/` + layout + `"/></Relationships>`
}

const themeXML = xmlDecl + `<a:theme xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" name="Office Theme"><a:themeElements><a:clrScheme name="Office"><a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1><a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1><a:dk2><a:srgbClr val="44546A"/></a:dk2><a:lt2><a:srgbClr val="E7E6E6"/></a:lt2><a:accent1><a:srgbClr val="4472C4"/></a:accent1><a:accent2><a:srgbClr val="ED7D31"/></a:accent2><a:accent3><a:srgbClr val="A5A5A5"/></a:accent3><a:accent4><a:srgbClr val="FFC000"/></a:accent4><a:accent5><a:srgbClr val="5B9BD5"/></a:accent5><a:accent6><a:srgbClr val="70AD47"/></a:accent6><a:hlink><a:srgbClr val="0563C1"/></a:hlink><a:folHlink><a:srgbClr val="954F72"/></a:folHlink></a:clrScheme><a:fontScheme name="Office"><a:majorFont><a:latin typeface="Calibri Light"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont><a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont></a:fontScheme><a:fmtScheme name="Office"><a:fillStyleLst><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:fillStyleLst><a:lnStyleLst><a:ln w="6350"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln><a:ln w="12700"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln><a:ln w="19050"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln></a:lnStyleLst><a:effectStyleLst><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle></a:effectStyleLst><a:bgFillStyleLst><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:bgFillStyleLst></a:fmtScheme></a:themeElements></a:theme>`
