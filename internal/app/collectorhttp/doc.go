// Package collectorhttp реализует HTTP-интерфейс сборщика jsonl-записей. Основные эндпоинты:
//   - PUT /* — принимает сжатую страницу записи, отвечает {code, msg, page[, done]} всегда со статусом 200.
//   - OPTIONS /* — пустой ответ для CORS preflight.
//   - GET /records/{name} — отдаёт опубликованную запись как application/gzip.
//   - GET /health — число открытых сессий и объём артефактов на диске.
//   - POST /admin/gc — внеочередной проход сборщика брошенных загрузок.
package collectorhttp
