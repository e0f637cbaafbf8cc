// Package ocr connects the detection pipeline to the Tesseract OCR engine
// through gosseract/v2.
//
// It offers two things:
//
//   - TesseractModel, a model.Model that uses Tesseract's layout analysis as
//     a text detector: every word box is painted into the probability map
//     with the word's confidence.
//   - Recognizer, which reads the text inside boxes produced by the
//     detection pipeline, one single-line Tesseract pass per box.
//
// # Prerequisites
//
// Tesseract and the language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Engine.TessdataPrefix (or the TESSDATA_PREFIX variable) points Tesseract
// at a non-standard data directory. Probe reports whether the engine is
// usable with a given configuration.
//
// Failures inside Tesseract are reported as OCR_FAILED errors.
package ocr
