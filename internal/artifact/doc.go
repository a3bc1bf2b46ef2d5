// Package artifact управляет файлами сборки на локальном диске:
//   - частичный артефакт {scratch}/{key}.jsonl.gz дописывается по одной gzip-секции на страницу;
//   - итоговый артефакт {data}/{prefix}.jsonl.gz публикуется атомарным rename.
//
// Многосекционный gzip читается как конкатенация, поэтому итоговый файл разжимается
// в исходную последовательность строк.
package artifact
