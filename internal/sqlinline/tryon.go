package sqlinline

const QInsertTryOnRecord = `--sql 409053e9-7053-4520-b59b-7902ff88ec33
insert into tryon_records (
  id,
  user_id,
  ip_address,
  client_signature,
  body_image_url,
  garment_image_urls,
  status,
  attempt_count,
  metadata,
  created_at
)
values ($1, $2, $3, $4, $5, $6, 'pending', 0, $7, now())
returning created_at;
`

const QBeginProcessing = `--sql e5cf46b6-bc78-4d79-b51b-a629753c1288
update tryon_records
set status = 'processing'
where id = $1
  and status = 'pending';
`

const QCompleteSuccess = `--sql 17028920-1d24-4abb-8925-43286fcb873d
update tryon_records
set status = 'success',
    result_image_url = $2,
    audit_score = $3,
    audit_details = $4,
    attempt_count = $5,
    completed_at = now(),
    processing_ms = (extract(epoch from (now() - created_at)) * 1000)::bigint
where id = $1
  and status = 'processing';
`

const QCompleteFailure = `--sql 7d205210-a752-44e1-8a68-ec12edb43090
update tryon_records
set status = 'failed',
    failure_reason = $2,
    attempt_count = $3,
    completed_at = now(),
    processing_ms = (extract(epoch from (now() - created_at)) * 1000)::bigint
where id = $1
  and status = 'processing';
`

const QSelectTryOnRecord = `--sql aa6b8396-6047-4db8-b764-57ae380c71c9
select
  id,
  user_id,
  ip_address,
  client_signature,
  body_image_url,
  garment_image_urls,
  result_image_url,
  status,
  failure_reason,
  audit_score,
  audit_details,
  attempt_count,
  metadata,
  created_at,
  completed_at,
  processing_ms
from tryon_records
where id = $1;
`

const QSelectStatus = `--sql 7d36fd67-2daf-484e-820e-c8985e2fae08
select status
from tryon_records
where id = $1;
`

const QDeleteTryOnRecord = `--sql 1c41603c-4e0f-430e-beca-ec84f4e7b488
delete from tryon_records
where id = $1;
`

const QNextPending = `--sql 2031a58c-b1fe-4fcf-83c1-30e3d7a173b7
select
  id,
  user_id,
  ip_address,
  client_signature,
  body_image_url,
  garment_image_urls,
  result_image_url,
  status,
  failure_reason,
  audit_score,
  audit_details,
  attempt_count,
  metadata,
  created_at,
  completed_at,
  processing_ms
from tryon_records
where status = 'pending'
order by created_at asc
limit 1;
`

const QCountWindow = `--sql fcd78af6-9f71-4cb5-9b93-db427ea5f841
select count(*), min(created_at)
from tryon_records
where created_at >= $4
  and (
    ($1::uuid is not null and user_id = $1)
    or ($1::uuid is null and user_id is null and ip_address = $2 and client_signature = $3)
  );
`

const QListHistory = `--sql d16bb96a-350a-47ab-9fd0-eeb80fdcdc39
select
  id,
  user_id,
  ip_address,
  client_signature,
  body_image_url,
  garment_image_urls,
  result_image_url,
  status,
  failure_reason,
  audit_score,
  audit_details,
  attempt_count,
  metadata,
  created_at,
  completed_at,
  processing_ms,
  count(*) over() as total
from tryon_records
where (
    ($1::uuid is not null and user_id = $1)
    or ($1::uuid is null and user_id is null and ip_address = $2 and client_signature = $3)
  )
  and ($4::text = '' or status = $4)
order by created_at desc
limit $5 offset $6;
`

const QCountHistory = `--sql 75bd32b4-7d4e-46e7-96a9-6fb4d65926fb
select count(*)
from tryon_records
where (
    ($1::uuid is not null and user_id = $1)
    or ($1::uuid is null and user_id is null and ip_address = $2 and client_signature = $3)
  )
  and ($4::text = '' or status = $4);
`

const QUsageStats = `--sql 6dbeb555-e1bb-477a-ae3f-d5a2b4e4d8e5
select
  count(*) as total,
  count(*) filter (where status = 'success') as successful,
  count(*) filter (where status = 'failed') as failed,
  count(*) filter (where status in ('pending', 'processing')) as in_flight,
  avg(processing_ms) filter (where processing_ms is not null) as avg_processing_ms
from tryon_records
where (
    ($1::uuid is not null and user_id = $1)
    or ($1::uuid is null and user_id is null and ip_address = $2 and client_signature = $3)
  );
`
